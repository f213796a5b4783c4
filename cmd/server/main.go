package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"snai.network/internal/httpapi"
	"snai.network/internal/llm"
	"snai.network/internal/market"
	"snai.network/internal/persistence/indexdb"
	persistlog "snai.network/internal/persistence/log"
	"snai.network/internal/persistence/store"
	"snai.network/internal/sim/network"
	"snai.network/internal/sim/roster"
	"snai.network/internal/sim/tuning"
	"snai.network/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 1337, "rng seed (used only when starting fresh)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		llmBase    = flag.String("llm_base", "", "LLM base url (overrides tuning)")
		llmModel   = flag.String("llm_model", "", "LLM model (overrides tuning)")
		pprofHTTP  = flag.Bool("pprof", false, "enable /debug/pprof endpoints")
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
	if *llmBase != "" {
		tune.LLM.BaseURL = *llmBase
	}
	if *llmModel != "" {
		tune.LLM.Model = *llmModel
	}

	ros, err := roster.Load(*configDir)
	if err != nil {
		logger.Fatalf("load roster: %v", err)
	}
	logger.Printf("roster: %d agents, %d factions, %d communities (agents digest %s)",
		len(ros.Agents), len(ros.Factions), len(ros.Communities), short(ros.AgentsDigest))

	_ = os.MkdirAll(*dataDir, 0o755)
	stateDir := filepath.Join(*dataDir, "state")

	n := network.New(network.Config{Seed: *seed, Tune: tune}, ros, logger)

	snap, err := store.Load(stateDir)
	if err != nil {
		logger.Fatalf("load state: %v", err)
	}
	if snap.Meta.Version != 0 {
		n.ImportSnapshot(snap)
		logger.Printf("resumed state at tick %d (%d agents, %d posts)", snap.Meta.Tick, len(snap.Agents), len(snap.Posts))
	} else {
		logger.Printf("fresh state, seeded from roster")
	}

	// LLM is optional: without a key the network still serves humans, it is
	// just quiet.
	if key := os.Getenv(tune.LLM.APIKeyEnv); key != "" {
		n.SetCompleter(llm.New(llm.Config{
			BaseURL:   tune.LLM.BaseURL,
			APIKey:    key,
			Model:     tune.LLM.Model,
			MaxTokens: tune.LLM.MaxTokens,
			Timeout:   time.Duration(tune.LLM.TimeoutSecs) * time.Second,
		}))
		logger.Printf("llm: %s (%s), %d workers", tune.LLM.BaseURL, tune.LLM.Model, tune.LLM.Workers)
	} else {
		logger.Printf("llm disabled (%s not set)", tune.LLM.APIKeyEnv)
	}

	n.SetPriceSource(market.New(tune.LLM.MarketBaseURL, time.Duration(tune.LLM.MarketTimeout)*time.Second))

	eventLog := persistlog.NewEventLogger(*dataDir)
	defer eventLog.Close()
	n.SetEventLogger(eventLog)

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	n.SetAuditLogger(auditLog)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "network.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		n.SetRecorder(idx)
	} else {
		logger.Printf("index db disabled")
	}

	// Snapshot writer: the loop hands over copies, this goroutine does the
	// disk io.
	snapCh := make(chan store.Snapshot, 1)
	n.SetSnapshotSink(snapCh)
	go func() {
		for s := range snapCh {
			if err := store.Save(stateDir, s); err != nil {
				logger.Printf("save state: %v", err)
			}
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	loopCtx, loopCancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := n.Run(loopCtx); err != nil && err != context.Canceled {
			logger.Printf("network stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		mctx, mcancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer mcancel()
		m, err := n.MetricsSnapshot(mctx)
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP snai_network_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_tick gauge\n")
		fmt.Fprintf(rw, "snai_network_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP snai_network_agents Current number of agents.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_agents gauge\n")
		fmt.Fprintf(rw, "snai_network_agents %d\n", m.Agents)

		fmt.Fprintf(rw, "# HELP snai_network_users Known human users.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_users gauge\n")
		fmt.Fprintf(rw, "snai_network_users %d\n", m.Users)

		fmt.Fprintf(rw, "# HELP snai_network_posts Posts currently retained.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_posts gauge\n")
		fmt.Fprintf(rw, "snai_network_posts %d\n", m.Posts)

		fmt.Fprintf(rw, "# HELP snai_network_clients Connected websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_clients gauge\n")
		fmt.Fprintf(rw, "snai_network_clients %d\n", m.Clients)

		fmt.Fprintf(rw, "# HELP snai_network_chain_height Vanity chain height.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_chain_height gauge\n")
		fmt.Fprintf(rw, "snai_network_chain_height %d\n", m.ChainHeight)

		fmt.Fprintf(rw, "# HELP snai_network_gen_inflight Generation jobs in flight.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_gen_inflight gauge\n")
		fmt.Fprintf(rw, "snai_network_gen_inflight %d\n", m.GenInflight)

		fmt.Fprintf(rw, "# HELP snai_network_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_queue_depth gauge\n")
		fmt.Fprintf(rw, "snai_network_queue_depth{queue=%q} %d\n", "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "snai_network_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "snai_network_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)
		fmt.Fprintf(rw, "snai_network_queue_depth{queue=%q} %d\n", "api", m.QueueDepths.API)

		fmt.Fprintf(rw, "# HELP snai_network_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE snai_network_step_ms gauge\n")
		fmt.Fprintf(rw, "snai_network_step_ms %.3f\n", m.StepMS)
	})

	httpapi.NewServer(n, logger).Register(mux)
	mux.HandleFunc("/v1/ws", ws.NewServer(n, logger).Handler())

	if *pprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Final save: stop the loop, then export directly since nothing mutates
	// anymore.
	loopCancel()
	<-loopDone
	if err := store.Save(stateDir, n.ExportSnapshot(n.CurrentTick())); err != nil {
		logger.Printf("final save: %v", err)
	} else {
		logger.Printf("state saved at tick %d", n.CurrentTick())
	}
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

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
