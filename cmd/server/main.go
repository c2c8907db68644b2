package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"timeline/internal/auth"
	"timeline/internal/config"
	"timeline/internal/db"
	"timeline/internal/handlers"
	"timeline/internal/logging"
	"timeline/internal/repository"
	"timeline/internal/upload"
)

func main() {
	var (
		envFile string
		addr    string
		debug   bool
		devMode bool
	)

	rootCmd := &cobra.Command{
		Use:           "timeline",
		Short:         "Timeline web server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("No %s file found, using environment variables", envFile)
			}

			load := config.Load
			if devMode {
				load = config.LoadWithDefaults
			}
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("debug") {
				cfg.Server.Debug = debug
			}
			return run(cfg)
		},
	}
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "environment file to load")
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (overrides ADDR)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "debug logging (overrides DEBUG)")
	rootCmd.Flags().BoolVar(&devMode, "dev", false, "allow a built-in SECRET_KEY for local development")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	out, closeLog, err := logOutput(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logging.New(out, cfg.Server.Debug)
	ctx := context.Background()
	logger.Info(ctx, "configuration loaded", map[string]interface{}{"config": cfg.String()})

	d, err := db.Open(cfg.Database.URL, db.Options{Debug: cfg.Server.Debug, LogOutput: out})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := db.Close(d); err != nil {
			logger.Error(ctx, "close db", map[string]interface{}{"error": err.Error()})
		}
	}()
	if err := db.Migrate(d); err != nil {
		return err
	}
	created, err := db.SeedAdmin(ctx, d, cfg.Auth.AdminPassword, auth.HashPassword)
	if err != nil {
		return err
	}
	if created {
		logger.Info(ctx, "admin user created", map[string]interface{}{"name": db.AdminName})
	}

	store, closeStore, err := sessionStore(ctx, cfg, d)
	if err != nil {
		return err
	}
	defer closeStore()

	signer, err := auth.NewSigner(cfg.Auth.SecretKey)
	if err != nil {
		return err
	}
	uploads, err := upload.NewStore(cfg.Upload.Dir)
	if err != nil {
		return err
	}

	h := handlers.New(handlers.Deps{
		Users:    repository.NewUserRepository(d, logger),
		Posts:    repository.NewPostRepository(d, logger),
		Sessions: auth.NewManager(store, signer, cfg.Session.MaxAge, cfg.Auth.SecureCookie),
		Flash:    auth.NewFlasher(signer, cfg.Auth.SecureCookie),
		Uploads:  uploads,
		Logger:   logger,
		MaxBody:  cfg.Upload.MaxBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-sigc:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "shutdown", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// sessionStore picks the session backend named by SESSION_BACKEND.
func sessionStore(ctx context.Context, cfg *config.Config, d *gorm.DB) (auth.Store, func(), error) {
	if cfg.Session.Backend != config.BackendRedis {
		return auth.NewSQLStore(d), func() {}, nil
	}
	rdb, err := auth.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}

// logOutput is stdout, plus the log file when one is configured.
func logOutput(file string) (io.Writer, func(), error) {
	if file == "" {
		return os.Stdout, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return io.MultiWriter(os.Stdout, f), func() { _ = f.Close() }, nil
}
