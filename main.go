package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/catalogmirror/config"
	"github.com/camden-git/catalogmirror/database"
	"github.com/camden-git/catalogmirror/exclusion"
	"github.com/camden-git/catalogmirror/handlers"
	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/realtime"
	"github.com/camden-git/catalogmirror/reconcile"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/sync"
	"github.com/camden-git/catalogmirror/upstream"
	"github.com/camden-git/catalogmirror/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("FATAL: Failed to create database directory: %v", err)
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}
	log.Printf("Using database: %s", cfg.DatabasePath)

	entityRepo := repository.NewEntityRepository(db)
	graphRepo := repository.NewGraphRepository(db)
	cursorRepo := repository.NewCursorRepository(db)
	sourceRepo := repository.NewSourceRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	mergeRepo := repository.NewMergeRepository(db)
	exclusionRepo := repository.NewExclusionRepository(db)
	userRepo := repository.NewUserRepository(db)
	appStateRepo := repository.NewAppStateRepository(db)

	hub := realtime.NewHub()
	go hub.Run()

	computer := exclusion.NewComputer(entityRepo, graphRepo, userRepo, exclusionRepo, cfg.ExclusionCascadeDepth)
	exclusionProcessor := workers.NewExclusionProcessor(computer, cfg.ExclusionQueueSize, cfg.NumExclusionWorkers)

	reconcileService := reconcile.NewService(db, entityRepo, activityRepo, mergeRepo, exclusionRepo,
		cfg.MatchCandidateLimit, cfg.NearMatchMaxDistance)

	engine := sync.NewEngine(entityRepo, cfg.SyncPageSize, cfg.UpsertBatchSize)
	scheduler := sync.NewScheduler(engine, cursorRepo, sourceRepo, appStateRepo,
		func(src models.SourceInstance) upstream.Client {
			return upstream.NewHTTPClient(src.Endpoint, src.APIKey)
		}, hub, exclusionProcessor, &cfg)
	scheduler.Start()
	defer scheduler.Stop()
	defer exclusionProcessor.Stop()

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	syncHandler := &handlers.SyncHandler{Scheduler: scheduler, Cursors: cursorRepo}
	webhookHandler := &handlers.WebhookHandler{
		Scheduler: scheduler, Sources: sourceRepo, Entities: entityRepo,
	}
	reconcileHandler := &handlers.ReconcileHandler{Service: reconcileService, Merges: mergeRepo}
	exclusionHandler := &handlers.ExclusionHandler{
		Processor: exclusionProcessor, Exclusions: exclusionRepo, Users: userRepo,
	}
	sourceHandler := &handlers.SourceHandler{Sources: sourceRepo, Entities: entityRepo}
	userHandler := &handlers.UserHandler{Users: userRepo, Activity: activityRepo, Processor: exclusionProcessor}
	browseHandler := &handlers.BrowseHandler{DB: db, Exclusions: exclusionRepo}

	r.Route("/api", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Use(handlers.AdminTokenMiddleware(cfg.AdminToken))

			r.Route("/sync", func(r chi.Router) {
				r.Post("/full", syncHandler.TriggerFull)
				r.Post("/incremental", syncHandler.TriggerIncremental)
				r.Post("/abort", syncHandler.Abort)
				r.Get("/status", syncHandler.Status)
				r.Put("/settings", syncHandler.UpdateSettings)
			})

			r.Route("/reconcile", func(r chi.Router) {
				r.Get("/orphans", reconcileHandler.ListOrphans)
				r.Get("/orphans/{entity_type}/{instance_id}/{external_id}/matches", reconcileHandler.ListMatches)
				r.Post("/merge", reconcileHandler.Merge)
				r.Post("/discard", reconcileHandler.Discard)
				r.Post("/auto", reconcileHandler.Auto)
				r.Get("/history", reconcileHandler.History)
			})

			r.Route("/exclusions", func(r chi.Router) {
				r.Post("/recompute", exclusionHandler.Recompute)
				r.Get("/stats", exclusionHandler.Stats)
			})

			r.Route("/sources", func(r chi.Router) {
				r.Post("/", sourceHandler.Create)
				r.Get("/", sourceHandler.List)
				r.Route("/{source_id}", func(r chi.Router) {
					r.Get("/", sourceHandler.Get)
					r.Put("/", sourceHandler.Update)
					r.Delete("/", sourceHandler.Delete)
				})
			})

			r.Post("/users", userHandler.Create)
			r.Post("/webhook/sync", webhookHandler.HandleSync)
		})

		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Get("/rules", userHandler.ListRestrictionRules)
			r.Put("/rules", userHandler.SetRestrictionRule)
			r.Post("/hidden", userHandler.HideEntity)
			r.Post("/ratings", userHandler.Rate)
			r.Post("/watch", userHandler.AddWatch)
		})

		r.Get("/scenes", browseHandler.ListScenes)
		r.Get("/events/ws", hub.ServeWS)
	})

	serverAddr := ":" + cfg.Port
	fmt.Printf("Server starting on http://localhost:%s\n", cfg.Port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
