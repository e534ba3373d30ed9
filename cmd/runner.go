package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/auth"
	"github.com/novaplayer/api/internal/repositories"
	"github.com/novaplayer/api/internal/server"
	"github.com/novaplayer/api/internal/services"
	"github.com/novaplayer/api/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, migrateCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file when present, falls back to the embedded
// defaults, and applies environment overrides.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")

	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if loaded, err := shared.LoadConfig(path); err == nil {
			config = loaded
		} else {
			r.logger.Warn("failed to load config, using defaults", "path", path, "err", err)
		}
	}

	config.ApplyEnv()
	return config
}

// Serve wires the full stack and blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = int(port)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	cipher, err := shared.NewCipher(config.Security.EncryptionKey)
	if err != nil {
		return err
	}

	users := repositories.NewUserRepository(db)

	var cache services.Cache
	switch config.Cache.Backend {
	case "redis":
		redisCache, err := services.NewRedisCache(ctx, config.Cache.RedisAddr, config.Cache.RedisDB)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		cache = redisCache
		r.logger.Info("using redis cache", "addr", config.Cache.RedisAddr)
	default:
		cache = services.NewMemoryCache()
	}

	gateway := services.NewGateway(services.GatewayOpts{
		Store:        users,
		Cipher:       cipher,
		ClientID:     config.Credentials.Spotify.ClientID,
		ClientSecret: config.Credentials.Spotify.ClientSecret,
		Logger:       r.logger,
	})
	spotifySvc := services.NewSpotifyService(gateway, cache, users, r.logger)
	videoSvc := services.NewVideoService(config.Credentials.YouTube.APIKey, r.logger)

	mailer := auth.NewSendGridMailer(config.Mail.APIKey, config.Mail.Sender, config.Mail.SenderName, r.logger)
	authSvc := auth.NewService(auth.ServiceOpts{
		Users:               users,
		Cipher:              cipher,
		Mailer:              mailer,
		Logger:              r.logger,
		JWTSecret:           config.Auth.JWTSecret,
		TokenTTL:            time.Duration(config.Auth.TokenTTLMinutes) * time.Minute,
		FrontendURL:         config.Server.FrontendURL,
		SpotifyClientID:     config.Credentials.Spotify.ClientID,
		SpotifyClientSecret: config.Credentials.Spotify.ClientSecret,
		SpotifyRedirectURI:  config.Credentials.Spotify.RedirectURI,
	})

	srv := server.New(server.Opts{
		Logger:         r.logger,
		Auth:           authSvc,
		Spotify:        spotifySvc,
		Video:          videoSvc,
		Gateway:        gateway,
		JWTSecret:      config.Auth.JWTSecret,
		FrontendURL:    config.Server.FrontendURL,
		AllowedOrigins: config.Server.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// MigrateUp applies pending migrations.
func (r *Runner) MigrateUp(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := shared.NewDatabase(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	r.logger.Info("migrations applied", "path", config.Database.Path)
	return nil
}

// MigrateRollback rolls back the most recent migration.
func (r *Runner) MigrateRollback(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := shared.NewDatabase(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}

	r.logger.Info("rolled back one migration", "path", config.Database.Path)
	return nil
}

// Setup writes a starter configuration file.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	fmt.Fprintf(r.output, "wrote %s, fill in credentials or set them via the environment\n", path)
	return nil
}
