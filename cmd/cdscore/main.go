// Command cdscore wires the content-management core to its bundled
// reference collaborators (GORM store, extension-table MIME
// classifier, dhowden/tag+ffprobe metadata extractor, builtin layout
// engine, in-process event bus, fsnotify watcher) and exposes a thin
// gin status surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/cdscore/internal/apiroutes"
	"github.com/mantonx/cdscore/internal/cds"
	"github.com/mantonx/cdscore/internal/config"
	"github.com/mantonx/cdscore/internal/events"
	"github.com/mantonx/cdscore/internal/layout"
	"github.com/mantonx/cdscore/internal/logger"
	"github.com/mantonx/cdscore/internal/metadata"
	"github.com/mantonx/cdscore/internal/mime"
	"github.com/mantonx/cdscore/internal/notifybus"
	"github.com/mantonx/cdscore/internal/session"
	"github.com/mantonx/cdscore/internal/store"
	"github.com/mantonx/cdscore/internal/timer"
	"github.com/mantonx/cdscore/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	addr := flag.String("addr", ":8080", "status server listen address")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "cdscore: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	log := logger.Named("main")

	db, err := store.Open(cfg.Database.Type, cfg.DSN())
	if err != nil {
		log.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	if err := db.Migrate(); err != nil {
		log.Error("migrate database", "error", err.Error())
		os.Exit(1)
	}

	bus := events.New(events.DefaultBusConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Start(ctx); err != nil {
		log.Error("start event bus", "error", err.Error())
		os.Exit(1)
	}

	sessions := session.New()

	var layoutEngine cds.LayoutEngine
	switch cfg.Layout.Type {
	case "disabled":
		layoutEngine = cds.NopLayout{}
	case "js":
		log.Error("construct core", "error", "layout_type \"js\" is not implemented by this build; use \"builtin\" or \"disabled\"")
		os.Exit(1)
	default:
		layoutEngine = layout.New(cfg.Layout.ReadableNames)
	}

	mapping := make([]cds.LayoutMappingRule, len(cfg.Layout.Mapping))
	for i, rule := range cfg.Layout.Mapping {
		mapping[i] = cds.LayoutMappingRule{Pattern: rule.Pattern, Replacement: rule.Replacement}
	}

	contentTypes := mime.DefaultContentTypes()
	for mt, ct := range cfg.Scanner.MimetypeToContentType {
		contentTypes[mt] = ct
	}

	var core *cds.Core
	tick := timer.New(func(param string) {
		if core != nil {
			core.TimerNotify(ctx, param)
		}
	})

	core, err = cds.New(cds.Config{
		FollowSymlinks:        cfg.Scanner.FollowSymlinks,
		IncludeHidden:         cfg.Scanner.IncludeHidden,
		ProcessExisting:       cfg.Scanner.ProcessExisting,
		MarkPlayedEnabled:     cfg.Playback.MarkPlayedEnabled,
		MarkPlayedMimePrefix:  cfg.Playback.MarkPlayedMimePrefixes,
		SuppressUpdatesOnPlay: cfg.Playback.SuppressUpdatesOnPlay,
		LastOpenedBound:       cfg.Playback.LastOpenedBound,
		ContainerArtParents:   cfg.Layout.ContainerArtParents,
		ContainerArtMinDepth:  cfg.Layout.ContainerArtMinDepth,
		Separator:             cfg.Layout.Separator,
		Escape:                cfg.Layout.Escape,
		Mapping:               mapping,
		MimetypeToContentType: contentTypes,
	}, cds.Collaborators{
		Database: db,
		Mime:     mime.New(),
		Metadata: metadata.New(),
		Layout:   layoutEngine,
		Bus:      notifybus.New(bus),
		Sessions: sessions,
		Timer:    tick,
	})
	if err != nil {
		log.Error("construct core", "error", err.Error())
		os.Exit(1)
	}
	core.Start(ctx)

	if cfg.Scanner.UseEventWatcher {
		w, err := watcher.New(core, cfg.Scanner.EventDebounce)
		if err != nil {
			log.Error("start watcher", "error", err.Error())
			os.Exit(1)
		}
		go w.Run(ctx)
		for _, adir := range core.ListAutoscanDirectories(cds.ScanModeEvent) {
			if err := w.Watch(adir); err != nil {
				log.Warn("watch autoscan directory", "location", adir.Location, "error", err.Error())
			}
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	registerRoutes(r, core)

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server", "error", err.Error())
		}
	}()
	log.Info("cdscore started", "addr", *addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	core.Shutdown()
	_ = bus.Stop(ctx)
}

func registerRoutes(r *gin.Engine, core *cds.Core) {
	apiroutes.Register("/healthz", http.MethodGet, "liveness probe")
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiroutes.Register("/routes", http.MethodGet, "registered route listing")
	r.GET("/routes", func(c *gin.Context) {
		c.JSON(http.StatusOK, apiroutes.Get())
	})

	apiroutes.Register("/tasks", http.MethodGet, "current task queue snapshot")
	r.GET("/tasks", func(c *gin.Context) {
		c.JSON(http.StatusOK, core.GetTaskList())
	})
}
