package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tamcal/adapters/excel"
	"tamcal/adapters/store"
	"tamcal/app"
	"tamcal/internal/config"
	"tamcal/ui"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, appConfig.Database.Driver, appConfig.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	repo := store.NewFitRepository(db)

	service := app.NewCalibrationService(
		excel.NewLoader(),
		repo,
		app.SettingsFromConfig(appConfig),
		app.DemoFromConfig(appConfig),
		appConfig.Search.Timeout,
	)

	if appConfig.Profiling.Enabled {
		go startProfiler(appConfig.Profiling.Port)
	}

	server := ui.NewServer(service, repo, app.RequestFromConfig(appConfig), appConfig.Data.Dir)
	log.Printf("Starting tamcal server on port %s", appConfig.Server.Port)
	if err := server.Start(ctx, ":"+appConfig.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// startProfiler serves pprof under /debug on a separate port
func startProfiler(port string) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Mount("/debug", middleware.Profiler())

	log.Printf("Performance profiling server starting on :%s", port)
	log.Printf("View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Printf("pprof server failed: %v", err)
	}
}
