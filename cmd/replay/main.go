package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"manhunt.gg/internal/mirror"
	"manhunt.gg/internal/persistence/journal"
	"manhunt.gg/internal/protocol"
)

// Replays a session's broadcast journal through a mirror and prints what a
// perfectly connected peer would have converged to. Useful for postmortems
// on desync reports.
func main() {
	var (
		eventsDir = flag.String("events", "./data/events", "dir containing events-*.jsonl.zst")
		fromSeq   = flag.Uint64("from_seq", 0, "skip events at or below this seq")
		verbose   = flag.Bool("v", false, "print every event")
	)
	flag.Parse()

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files in", *eventsDir)
		os.Exit(1)
	}

	m := mirror.New()
	var total, eliminations int
	for _, f := range files {
		err := journal.ReadAll(f, func(line []byte) error {
			var ev protocol.EventMsg
			if err := json.Unmarshal(line, &ev); err != nil {
				return err
			}
			if ev.Seq <= *fromSeq {
				return nil
			}
			if *verbose {
				fmt.Printf("seq=%d tick=%d %s %v\n", ev.Seq, ev.Tick, ev.Kind, ev.Data)
			}
			if ev.Kind == protocol.EvEliminationConfirmed {
				eliminations++
			}
			m.Apply(ev)
			total++
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", f, err)
			os.Exit(1)
		}
	}

	fmt.Printf("replayed %d events (last seq %d)\n", total, m.LastSeq())
	fmt.Printf("phase=%s peers=%d extras=%d eliminations=%d\n", m.Phase, len(m.Peers), len(m.Extras), eliminations)
	if m.Phase == "ENDED" {
		fmt.Printf("winner=%s reason=%s\n", m.Winner, m.Reason)
	}
	for _, p := range sortedPeers(m) {
		spawn := "-"
		if p.Spawn != nil {
			spawn = fmt.Sprintf("%s/%d", p.Spawn.Area, p.Spawn.Slot)
		}
		fmt.Printf("  peer %d %-12s role=%-12s alive=%-5v spawn=%s\n", p.ID, p.Name, p.Role, p.Alive, spawn)
	}
}

func listEventFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func sortedPeers(m *mirror.Mirror) []*mirror.Peer {
	out := make([]*mirror.Peer, 0, len(m.Peers))
	for _, p := range m.Peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
