package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/ocsearch/ocsearch/pkg/api"
	"github.com/ocsearch/ocsearch/pkg/config"
	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/exportcache"
	"github.com/ocsearch/ocsearch/pkg/log"
	"github.com/ocsearch/ocsearch/pkg/plugins"
	"github.com/ocsearch/ocsearch/pkg/search"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the search HTTP server",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"))
		},
	}
}

// serve runs the HTTP server until interrupted. The definitions
// snapshot reloads on SIGHUP and whenever the definitions database
// changes on disk.
func serve(ctx context.Context, configPath string) error {
	logger := log.ForService("serve")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := definitions.OpenStore(cfg.DefinitionsDB)
	if err != nil {
		return fmt.Errorf("opening definitions store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close definitions store: %v", err)
		}
	}()

	provider, err := definitions.NewProvider(ctx, store)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	logger.Infof("loaded %d search definitions", len(provider.Snapshot().SearchIDs()))

	engine := solr.NewClient(cfg.SolrURL, cfg.SolrTimeout.Duration)

	exports, err := exportcache.New(exportcache.Config{
		Dir:       cfg.Export.CacheDir,
		BaseURL:   cfg.Export.CacheURL,
		Freshness: cfg.Export.Freshness.Duration,
		MaxRows:   cfg.Export.MaxRows,
		Compress:  cfg.Export.Compress,
	})
	if err != nil {
		return fmt.Errorf("creating export cache: %w", err)
	}

	janitor := exportcache.NewJanitor(exports, cfg.Export.Freshness.Duration)
	janitor.Start(ctx)
	defer janitor.Stop()

	service := search.New(provider, engine, plugins.GlobalRegistry(), exports)
	server := api.NewServer(service, provider)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.RequestIDMiddleware(api.CorsMiddleware(mux)),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Signal handling - includes SIGHUP for definitions reload
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Watch the definitions database so admin-side edits go live
	// without a restart.
	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create definitions watcher: %v", err)
	} else {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close definitions watcher: %v", err)
			}
		}()
		if err := watcher.Add(cfg.DefinitionsDB); err != nil {
			logger.Warnf("failed to watch %s: %v", cfg.DefinitionsDB, err)
		} else {
			logger.Infof("watching definitions database: %s", cfg.DefinitionsDB)
		}
	}

	reload := func(reason string) {
		logger.Infof("reloading definitions (%s)", reason)
		if err := provider.Reload(ctx); err != nil {
			logger.Errorf("definitions reload failed, keeping previous snapshot: %v", err)
			return
		}
		logger.Infof("definitions reloaded: %d search types", len(provider.Snapshot().SearchIDs()))
	}

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				reload("SIGHUP")
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Infof("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		case event, ok := <-watchEvents:
			if !ok {
				continue
			}
			// Editors and sqlite both replace files, so react to
			// write, create, rename and remove.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					time.Sleep(100 * time.Millisecond)
					if err := watcher.Add(cfg.DefinitionsDB); err != nil {
						logger.Warnf("failed to re-watch %s: %v", cfg.DefinitionsDB, err)
					}
				}
				reload(fmt.Sprintf("file event %s", event.Op))
			}
		case err, ok := <-watchErrors:
			if !ok {
				continue
			}
			logger.Warnf("definitions watcher error: %v", err)
		}
	}
}
