package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/aimessenger/aimessenger/internal/catalog"
	"github.com/aimessenger/aimessenger/internal/conversation"
	"github.com/aimessenger/aimessenger/internal/dispatch"
	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/health"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/remote"
	"github.com/aimessenger/aimessenger/internal/server"
	"github.com/aimessenger/aimessenger/internal/settings"
	"github.com/aimessenger/aimessenger/internal/storage"
)

func main() {
	godotenv.Load()

	httpAddr := flag.String("http", ":8080", "HTTP/WebSocket listen address")
	dbPath := flag.String("db", "aimessenger.db", "SQLite database path")
	remoteURL := flag.String("remote-url", os.Getenv("SUPABASE_URL"), "Remote persistence base URL (or set SUPABASE_URL)")
	remoteKey := flag.String("remote-key", os.Getenv("SUPABASE_ANON_KEY"), "Remote persistence API key (or set SUPABASE_ANON_KEY)")
	userID := flag.String("user", os.Getenv("AIMSG_USER_ID"), "User id for remote sync (or set AIMSG_USER_ID)")
	mirrorPath := flag.String("settings", "", "Local settings TOML path (defaults to the user config dir)")
	flag.Parse()

	if err := storage.Init(*dbPath); err != nil {
		log.Fatalf("Storage error: %v", err)
	}

	bus := event.NewBus()
	registry := provider.NewRegistry()

	var remoteClient remote.Client
	if *remoteURL != "" && *remoteKey != "" {
		remoteClient = remote.NewHTTPClient(*remoteURL, *remoteKey)
	} else {
		log.Printf("[Main] Remote persistence disabled (no URL/key configured)")
	}

	settingsStore := settings.NewStore(remoteClient, bus)
	path := *mirrorPath
	if path == "" {
		if dir, err := settings.Dir(); err == nil {
			path = filepath.Join(dir, "settings.toml")
		}
	}
	if path != "" {
		if err := settingsStore.EnableLocalMirror(path); err != nil {
			log.Printf("[Main] Settings mirror disabled: %v", err)
		}
		defer settingsStore.Close()
	}

	cat := catalog.New(settingsStore, registry, remoteClient, bus)
	cat.Initialize()

	conversations := conversation.NewStore(bus)
	pipeline := dispatch.NewPipeline(conversations, cat, settingsStore, registry)

	monitor := health.NewMonitor(settingsStore, registry, bus)
	monitor.Start()
	defer monitor.Stop()

	// The active chat provider's personas mirror connection health
	bus.Subscribe([]string{event.TypeHealthChanged}, func(evt event.Event) {
		change, ok := evt.Payload.(health.Change)
		if !ok || change.Capability != health.CapabilityChat {
			return
		}
		cfg := settingsStore.Get()
		cat.SetProviderPresence(cfg.Provider, change.Status.Status == health.StatusConnected)
	})

	sessions := remote.NewSessionWatcher()
	if remoteClient != nil {
		sessions.Subscribe(func(id string) {
			if id == "" {
				settingsStore.ResetSession()
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := settingsStore.LoadFromRemote(ctx, id); err != nil {
				log.Printf("[Main] Settings sync failed: %v", err)
			}
			if err := cat.LoadUserModels(ctx, id); err != nil {
				log.Printf("[Main] Persona sync failed: %v", err)
			}
		})

		// Local edits flow back up while a user is signed in
		bus.Subscribe([]string{event.TypeSettingsUpdated}, func(event.Event) {
			if id := sessions.UserID(); id != "" {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := settingsStore.SaveToRemote(ctx, id); err != nil {
					log.Printf("[Main] Settings push failed: %v", err)
				}
			}
		})
		bus.Subscribe([]string{event.TypeCatalogUpdated}, func(event.Event) {
			if id := sessions.UserID(); id != "" {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := cat.SaveUserModels(ctx, id); err != nil {
					log.Printf("[Main] Persona push failed: %v", err)
				}
			}
		})
	}
	sessions.SetIdentity(*userID)

	// Pull the OpenRouter model list now and after credential changes
	refreshCatalog := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := cat.FetchProviderCatalog(ctx); err != nil {
			log.Printf("[Main] Catalog refresh failed: %v", err)
		}
	}
	go refreshCatalog()
	bus.Subscribe([]string{event.TypeSettingsUpdated}, func(event.Event) {
		go refreshCatalog()
	})

	srv := server.New(*httpAddr, bus, conversations, pipeline, cat, settingsStore, monitor)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
