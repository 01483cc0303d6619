package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/auth"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if len(os.Args) > 1 && os.Args[1] == "create-user" {
		createUser(logger, cfg.SQLiteDBPath, os.Args[2:])
		return
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var events services.EventPublisher
	if client := cli.ConnectAMQP(logger, cfg); client != nil {
		defer client.Close()
		events = client
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		DefaultPageSize:    cfg.DefaultPageSize,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, repo, events)

	ctx, stop := cli.SignalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "sqlite_db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

// createUser registers a user and prints its API token. The token is shown
// once; only its hash is stored.
func createUser(logger *log.Logger, dbPath string, args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "user email (required)")
	name := fs.String("name", "", "display name")
	_ = fs.Parse(args)
	if *email == "" {
		fs.Usage()
		os.Exit(2)
	}

	repo := cli.InitSQLite(logger, dbPath)
	defer repo.Close()

	token, hash, err := auth.GenerateToken()
	if err != nil {
		logger.Error("Failed to generate token", log.FieldError, err)
		os.Exit(1)
	}
	user, err := repo.CreateUser(context.Background(), *email, *name, hash)
	if err != nil {
		logger.Error("Failed to create user", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("User created", log.FieldUserID, user.ID, "email", user.Email)
	fmt.Printf("API token for %s: %s\n", user.Email, token)
}
