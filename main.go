package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"pgcats/api"
	"pgcats/config"
	"pgcats/handlers"
	"pgcats/models"
	"pgcats/services/catalog"
)

func main() {
	buildFile := flag.String("build", "", "run one catalog build from the given JSON config file and exit")
	outFile := flag.String("out", "", "with -build, write the catalog to this file instead of stdout")
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	// Determine config path (env or default)
	configPath := os.Getenv("PGCATS_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	settings.ApplyEnv()

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	fs := afero.NewOsFs()
	catalogService, err := catalog.NewService(catalog.Options{
		TMDBToken:     settings.Metadata.TMDBToken,
		OMDBAPIKey:    settings.Metadata.OMDBAPIKey,
		CacheDir:      settings.Cache.Directory,
		PosterBaseURL: settings.Catalog.PosterBaseURL,
		LogoBaseURL:   settings.Catalog.LogoBaseURL,
		Fs:            fs,
	})
	if err != nil {
		log.Fatalf("failed to start catalog service: %v", err)
	}

	if *buildFile != "" {
		if err := runBuild(catalogService, *buildFile, *outFile); err != nil {
			log.Fatalf("build failed: %v", err)
		}
		return
	}

	library := catalog.NewLibrary(fs, settings.Cache.Directory)
	catalogHandler := handlers.NewCatalogHandler(catalogService, library, settings.Catalog.MaxPages)
	stremioHandler := handlers.NewStremioHandler(library, settings.Catalog.ManifestID, settings.Catalog.ManifestName)

	r := api.NewRouter(catalogHandler, stremioHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // builds run synchronously on the request
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("pgcats listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}

// runBuild is the CLI path: one build from a config file, catalog JSON
// to stdout or a file.
func runBuild(svc *catalog.Service, configFile, outFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("read build config: %w", err)
	}
	var cfg models.BuildConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse build config: %w", err)
	}

	entries, report, err := svc.Build(context.Background(), cfg)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, out, 0o644); err != nil {
			return err
		}
		log.Printf("wrote %d entries to %s (build %s)", len(entries), outFile, report.BuildID)
		return nil
	}
	fmt.Println(string(out))
	return nil
}
