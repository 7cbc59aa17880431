package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/httpapi"
	"github.com/praxisworks/patent-agents/internal/intent"
	"github.com/praxisworks/patent-agents/internal/registry"
	"github.com/praxisworks/patent-agents/internal/router"
	"github.com/praxisworks/patent-agents/internal/tracer"
	"github.com/praxisworks/patent-agents/internal/workflow"
)

func main() {
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides DB_PATH env var)")
	strategyFlag := flag.String("strategy", "", "routing strategy: capability_based, load_balanced, priority_based")
	pdfFlag := flag.Bool("pdf", false, "enable chromium-backed PDF rendering for reports")
	flag.Parse()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	logger := log.New(os.Stdout, "patent-agents ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, tracer.Config{
		Enabled:  os.Getenv("TRACE_ENABLED") == "true",
		Endpoint: os.Getenv("OTLP_ENDPOINT"),
	})
	if err != nil {
		logger.Fatalf("tracer setup: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	var caller intent.Caller
	if anthropicCaller, err := intent.NewAnthropicCallerFromEnv(); err != nil {
		logger.Printf("no LLM classifier (%v), using keyword matching", err)
	} else {
		caller = anthropicCaller
	}
	classifier := intent.NewClassifier(caller, logger)

	reg := registry.New(registry.Config{})
	cache := agents.NewCache(0, 0)

	var pdf agents.PDFRenderer
	if *pdfFlag {
		pdf = agents.NewChromiumPDFRenderer()
		logger.Printf("pdf rendering enabled")
	}

	crew := []agents.Agent{
		agents.NewCollector("collector-1", &agents.MockPatentSource{}, cache, logger),
		agents.NewSearcher("searcher-1", &agents.MockWebSource{}, cache, logger),
		agents.NewAnalyst("analyst-1", cache, logger),
		agents.NewReporter("reporter-1", pdf, cache, logger),
	}
	for _, a := range crew {
		if _, err := reg.Register(registry.AgentInfo{
			AgentID:      a.AgentID(),
			Type:         a.AgentType(),
			Capabilities: a.Capabilities(),
		}); err != nil {
			logger.Fatalf("register agent %s: %v", a.AgentID(), err)
		}
	}
	// General-purpose agents handled outside the patent pipeline.
	for _, info := range []registry.AgentInfo{
		{AgentID: "sales-1", Type: registry.TypeSales, Capabilities: []string{"pricing", "quotes", "产品", "价格"}},
		{AgentID: "support-1", Type: registry.TypeCustomerSupport, Capabilities: []string{"orders", "returns", "订单", "退货"}},
		{AgentID: "service-1", Type: registry.TypeFieldService, Capabilities: []string{"repair", "installation", "维修"}},
		{AgentID: "manager-1", Type: registry.TypeManager, Capabilities: []string{"approval", "escalation"}},
		{AgentID: "coordinator-1", Type: registry.TypeCoordinator, Capabilities: []string{"coordination"}},
		{AgentID: "patent-coordinator-1", Type: registry.TypePatentCoordinator, Capabilities: []string{"patent", "专利", "workflow_coordination"}},
	} {
		if _, err := reg.Register(info); err != nil {
			logger.Fatalf("register agent %s: %v", info.AgentID, err)
		}
	}

	rt, err := router.New(classifier, reg, router.Config{
		Strategy: router.ParseStrategy(*strategyFlag),
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("router: %v", err)
	}

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = os.Getenv("DB_PATH")
	}
	var store workflow.StateStore
	if dbPath != "" {
		ss, err := workflow.NewSQLiteStore(dbPath, workflow.StoreConfig{})
		if err != nil {
			logger.Fatalf("sqlite store (%s): %v", dbPath, err)
		}
		defer ss.Close()
		store = ss
		logger.Printf("using sqlite store at %s", dbPath)
	} else {
		store = workflow.NewStore(workflow.StoreConfig{})
	}

	coord := workflow.NewCoordinator(store, reg, crew, workflow.CoordinatorConfig{Logger: logger})

	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(rt, reg, store, coord, logger),
	}
	go func() {
		logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
