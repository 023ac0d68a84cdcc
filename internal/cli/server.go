package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"exam-service/internal/app"
	"exam-service/internal/auth"
	"exam-service/internal/config"
	"exam-service/internal/domain"
	"exam-service/internal/metrics"
	transport "exam-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	policy, err := domain.ParseDuplicatePolicy(cfg.Results.Duplicates)
	if err != nil {
		return err
	}
	m := metrics.New()
	service := app.NewExamService(b.exams, b.results,
		app.WithCache(b.cache),
		app.WithFeeds(b.feeds),
		app.WithRecorder(m),
		app.WithDuplicatePolicy(policy),
		app.WithLogger(log),
	)

	identity := auth.NewService(cfg.Auth.Secret, cfg.Auth.Issuer,
		config.TTLDuration(cfg.Auth.TokenTTL, 8*time.Hour), accounts(cfg.Users))

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterConfig{
			Service:     service,
			Identity:    identity,
			Metrics:     m,
			Log:         log,
			CORSOrigins: cfg.Server.CORSOrigins,
			LoginRate:   cfg.Auth.LoginRate,
			LoginBurst:  cfg.Auth.LoginBurst,
		}),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting exam service", "port", finalPort, "backend", cfg.Store.Backend, "users", len(cfg.Users))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func accounts(users []config.User) []auth.Account {
	out := make([]auth.Account, 0, len(users))
	for _, u := range users {
		out = append(out, auth.Account{
			ID:           u.ID,
			Email:        u.Email,
			Name:         u.Name,
			Role:         domain.Role(u.Role),
			PasswordHash: []byte(u.PasswordHash),
		})
	}
	return out
}
