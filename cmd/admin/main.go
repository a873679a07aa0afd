package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Thin operator CLI for a running session server.
//
//	admin -addr http://localhost:8080 health
//	admin -addr http://localhost:8080 diag
//	admin -addr http://localhost:8080 watch
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base url")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "diag"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	switch cmd {
	case "health":
		body, err := get(client, *addr+"/healthz")
		if err != nil {
			fail(err)
		}
		fmt.Println(string(body))
	case "diag":
		printDiag(client, *addr)
	case "watch":
		for {
			printDiag(client, *addr)
			time.Sleep(2 * time.Second)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (health|diag|watch)\n", cmd)
		os.Exit(2)
	}
}

func printDiag(client *http.Client, addr string) {
	body, err := get(client, addr+"/diagnostics")
	if err != nil {
		fail(err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		fail(err)
	}
	pretty, _ := json.MarshalIndent(m, "", "  ")
	fmt.Println(string(pretty))
}

func get(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s (%s)", url, resp.Status, body)
	}
	return body, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
