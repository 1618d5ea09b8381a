package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palaver/internal/chat"
	"palaver/internal/commands"
	"palaver/internal/config"
	"palaver/internal/directory"
	"palaver/internal/group"
	"palaver/internal/http"
	"palaver/internal/hydrate"
	"palaver/internal/presence"
	"palaver/internal/storage"
	"palaver/internal/stubs"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	syncUser := flag.String("sync-user", "", "User ID to push to a running server's admin API")
	displayName := flag.String("display-name", "", "Display name for -sync-user")
	email := flag.String("email", "", "Email for -sync-user")
	seed := flag.Bool("seed", false, "Seed the profile directory with development stubs")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *syncUser != "" {
		return commands.SyncUser(*syncUser, *displayName, *email, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	dir := directory.New(ctx, bbStorage, cfg.IdentityHeader, cfg.ProfileCacheTTL)

	if *seed {
		for _, p := range stubs.Profiles {
			if err := dir.Upsert(p); err != nil {
				return err
			}
		}
		slog.Info("seeded development profiles", "count", len(stubs.Profiles))
	}

	hub := presence.NewHub()
	chats := chat.NewService(bbStorage)
	groups := group.NewManager(bbStorage)
	hydrator := hydrate.New(bbStorage, dir)

	adminServer := http.NewAdminServer(dir, cfg.AdminAddr)
	apiServer := http.NewAPIServer(dir, hub, chats, groups, hydrator, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
