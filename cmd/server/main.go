package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schemascope/internal/config"
	"schemascope/internal/domain"
	"schemascope/internal/handler"
	"schemascope/internal/hub"
	"schemascope/internal/layout"
	"schemascope/internal/metadata"
	"schemascope/internal/provider"
	"schemascope/internal/repository/sqlite"
	"schemascope/internal/service"
)

func main() {
	// Command line flags override the config file
	addr := flag.String("addr", "", "HTTP listen address")
	configPath := flag.String("config", "", "config file path")
	dbPath := flag.String("db", "", "SQLite metadata store path")
	snapshotPath := flag.String("schema", "", "YAML schema snapshot path")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Schemascope server...")

	var (
		cfg     *config.Config
		cfgFrom string
		err     error
	)
	if *configPath != "" {
		cfg, cfgFrom, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgFrom, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgFrom != "" {
		log.Printf("Config loaded from %s", cfgFrom)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *snapshotPath != "" {
		cfg.Schema.SnapshotPath = *snapshotPath
	}
	if cfg.Schema.SnapshotPath == "" {
		log.Fatal("No schema snapshot configured (use -schema or schema.snapshot_path)")
	}

	// Schema source
	prov, err := provider.LoadSnapshot(cfg.Schema.SnapshotPath)
	if err != nil {
		log.Fatalf("Failed to load schema snapshot: %v", err)
	}
	log.Printf("Schema snapshot loaded: %s (API version %s)", cfg.Schema.SnapshotPath, prov.APIVersion())

	// Metadata store
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	// Metadata cache, warmed from prior runs of the same API version
	cache := metadata.NewCache(prov, repo)
	if loaded, err := cache.WarmFromStore(context.Background()); err != nil {
		log.Printf("Warning: failed to warm cache: %v", err)
	} else if loaded > 0 {
		log.Printf("Warmed %d descriptions from store", loaded)
	}

	// Layout engine
	direction, err := layout.ParseDirection(cfg.Diagram.LayoutDirection)
	if err != nil {
		log.Fatalf("Invalid layout direction: %v", err)
	}
	engine := layout.NewEngine(direction, cfg.Diagram.MaxLayoutNodes)

	// Diagram service
	eventBus := service.NewEventBus()
	diagramSvc := service.NewDiagramService(prov, cache, engine, eventBus, service.Options{
		DefaultFieldMode: domain.FieldMode(cfg.Diagram.DefaultFieldMode),
		MaxEntities:      cfg.Diagram.MaxEntities,
	})

	// SSE hub, replaying the current graph to renderers as they connect
	sseHub := hub.New(diagramSvc.Graph)
	go sseHub.Run()

	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(event)
		}
	}()

	// HTTP handlers
	diagramHandler := handler.NewDiagramHandler(diagramSvc)

	mux := http.NewServeMux()

	// Schema endpoints
	mux.HandleFunc("GET /api/entities", diagramHandler.ListEntities)
	mux.HandleFunc("GET /api/entities/{name}", diagramHandler.DescribeEntity)
	mux.HandleFunc("POST /api/entities/describe", diagramHandler.DescribeBatch)

	// Graph endpoint (full replacement collection)
	mux.HandleFunc("GET /api/graph", diagramHandler.GetGraph)

	// Selection endpoints
	mux.HandleFunc("POST /api/selection/entities", diagramHandler.SelectEntity)
	mux.HandleFunc("DELETE /api/selection/entities/{name}", diagramHandler.RemoveEntity)
	mux.HandleFunc("PUT /api/selection/entities/{name}/fields", diagramHandler.SetFields)
	mux.HandleFunc("POST /api/selection/relationships", diagramHandler.ToggleRelationship)

	// Display and layout endpoints
	mux.HandleFunc("PUT /api/display", diagramHandler.SetDisplay)
	mux.HandleFunc("POST /api/positions", diagramHandler.SavePositions)
	mux.HandleFunc("POST /api/layout", diagramHandler.AutoLayout)

	// Schema version switch (wholesale cache invalidation)
	mux.HandleFunc("POST /api/version", diagramHandler.SwitchVersion)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	readTimeout := cfg.Server.ReadTimeout.Duration()
	if readTimeout == 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.Server.WriteTimeout.Duration()
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
