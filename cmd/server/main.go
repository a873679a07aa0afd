package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manhunt.gg/internal/persistence/journal"
	"manhunt.gg/internal/persistence/matchdb"
	"manhunt.gg/internal/session"
	"manhunt.gg/internal/transport/ws"
	"manhunt.gg/internal/tuning"
)

type fixedRoster struct{ n int }

func (r fixedRoster) ExpectedParticipantCount() int { return r.n }

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "path to layout.yaml (default: <configs>/layout.yaml)")
		rosterSize = flag.Int("roster", 0, "expected participant count (0 = start on join grace expiry)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite match index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	lp := strings.TrimSpace(*layoutPath)
	if lp == "" {
		lp = filepath.Join(*configDir, "layout.yaml")
	}
	layout := session.NewFileLayout(lp)

	_ = os.MkdirAll(*dataDir, 0o755)

	sess := session.New(session.ConfigFromTuning(tune), layout, log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds))
	if *rosterSize > 0 {
		sess.SetRoster(fixedRoster{n: *rosterSize})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	sess.SetPromMetrics(session.NewPromMetrics(reg))

	evJournal := journal.NewEventJournal(*dataDir)
	defer evJournal.Close()
	sess.SetJournal(evJournal)

	var matches *matchdb.SQLiteMatchDB
	if !*disableDB {
		matches, err = matchdb.Open(filepath.Join(*dataDir, "index", "matches.db"))
		if err != nil {
			// Fatalf skips the deferred journal close.
			_ = evJournal.Close()
			logger.Fatalf("open match index: %v", err)
		}
		defer matches.Close()
		sess.SetMatchSink(matches)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(sess, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/diagnostics", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(sess.Metrics())
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/v1/ws", wsSrv.Handler())

	if os.Getenv("MH_ENABLE_PPROF_HTTP") == "true" {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Printf("session %s listening on %s (tick rate %d Hz)", sess.ID(), *addr, sess.TickRateHz())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		_ = evJournal.Close()
		if matches != nil {
			matches.Close()
		}
		logger.Fatalf("http: %v", err)
	}
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
