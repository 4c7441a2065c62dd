package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"opsdash/internal/assistant"
	"opsdash/internal/config"
	"opsdash/internal/digest"
	"opsdash/internal/httpapi"
	"opsdash/internal/httpx"
	"opsdash/internal/logging"
	"opsdash/internal/metrics"
	"opsdash/internal/storage"
	"opsdash/internal/stream"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Main runs the CLI and exits non-zero on error.
func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is what every subcommand starts from.
type deps struct {
	cfg    config.Config
	logger *zap.Logger
}

func setup(configPath string) (*deps, error) {
	if configPath != "" {
		if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		logger.Info("loaded config", zap.String("path", cfg.Source))
	}
	return &deps{cfg: cfg, logger: logger}, nil
}

func (rt *deps) openStore(ctx context.Context) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	store, err := storage.Open(ctx, rt.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	dbNow, err := storage.Ping(ctx, store, startupTimeout)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.logger.Info("database connection successful", zap.Time("database_time", dbNow))
	return store, nil
}

func (rt *deps) bridge(ctx context.Context, store storage.Store) (*assistant.Bridge, error) {
	provider, err := assistant.NewProvider(ctx, assistant.ProviderConfig{
		Name:            rt.cfg.LLMProvider,
		Model:           rt.cfg.LLMModel,
		GeminiAPIKey:    rt.cfg.GeminiAPIKey,
		AnthropicAPIKey: rt.cfg.AnthropicAPIKey,
	}, httpx.NewExternalClient(rt.cfg.ExternalHTTPTimeoutSeconds), rt.logger)
	if err != nil {
		return nil, fmt.Errorf("init assistant: %w", err)
	}
	if provider == nil {
		rt.logger.Warn("assistant disabled: no credential for provider", zap.String("provider", rt.cfg.LLMProvider))
	} else {
		rt.logger.Info("assistant enabled", zap.String("provider", provider.Name()), zap.String("model", rt.cfg.LLMModel))
	}
	return assistant.NewBridge(store, provider, rt.cfg.AssistantSampleSize, rt.logger), nil
}

func (rt *deps) slackClient() *slack.Client {
	return digest.NewSlackPoster(rt.cfg.SlackBotToken,
		slack.OptionHTTPClient(httpx.NewExternalClient(rt.cfg.ExternalHTTPTimeoutSeconds)))
}

func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "opsdash",
		Short:        "Operations tracking API for manufacturing, testing, field service and sales",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (overrides CONFIG_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, snapshot stream and digest scheduler",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the record tables if they do not exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "ask [question]",
			Short: "Ask the assistant a question about the latest records",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAsk(cmd, configPath, strings.Join(args, " "))
			},
		},
		newDigestCmd(&configPath),
	)
	return root
}

func newDigestCmd(configPath *string) *cobra.Command {
	var post bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print the last day's KPI digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, *configPath, post)
		},
	}
	cmd.Flags().BoolVar(&post, "post", false, "also post the digest to digest_channel_id")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, configPath string) error {
	rt, err := setup(configPath)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signalContext(parent)
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		rt.logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer store.Close()

	m := metrics.New()
	bridge, err := rt.bridge(ctx, store)
	if err != nil {
		return err
	}

	hub := stream.NewHub(store, stream.Options{
		Interval:      rt.cfg.RefreshInterval(),
		AllowedOrigin: rt.cfg.FrontendURL,
		Logger:        rt.logger.Named("stream"),
		Metrics:       m,
	})
	if err := hub.Start(); err != nil {
		return err
	}
	defer hub.Close()

	if rt.cfg.DigestConfigured() {
		schedule, err := config.ParseSchedule(rt.cfg.DigestSchedule)
		if err != nil {
			return err
		}
		scheduler := &digest.Scheduler{
			Store:     store,
			Poster:    rt.slackClient(),
			ChannelID: rt.cfg.DigestChannelID,
			Location:  rt.cfg.Location,
			UnitPrice: rt.cfg.UnitPrice,
			Logger:    rt.logger.Named("digest"),
			Metrics:   m,
		}
		scheduler.Start(schedule)
		defer scheduler.Stop()
	} else {
		rt.logger.Info("digest disabled (slack_bot_token, digest_channel_id and digest_schedule are required)")
	}

	api := httpapi.New(store, httpapi.Options{
		FrontendURL: rt.cfg.FrontendURL,
		Location:    rt.cfg.Location,
		UnitPrice:   rt.cfg.UnitPrice,
		Assistant:   bridge,
		Stream:      hub,
		Metrics:     m,
		Logger:      rt.logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              rt.cfg.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server running",
			zap.String("addr", srv.Addr),
			zap.String("frontend_url", rt.cfg.FrontendURL),
			zap.String("timezone", rt.cfg.Timezone),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked stream connections are not tracked by Shutdown; closing the
	// hub first ends them.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runMigrate(parent context.Context, configPath string) error {
	rt, err := setup(configPath)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	store, err := rt.openStore(parent)
	if err != nil {
		return err
	}
	defer store.Close()
	rt.logger.Info("schema is up to date")
	return nil
}

func runAsk(cmd *cobra.Command, configPath, question string) error {
	rt, err := setup(configPath)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	bridge, err := rt.bridge(ctx, store)
	if err != nil {
		return err
	}
	answer, err := bridge.Answer(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func runDigest(cmd *cobra.Command, configPath string, post bool) error {
	rt, err := setup(configPath)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if !post {
		summary, err := digest.Build(ctx, store, time.Now(), rt.cfg.Location, rt.cfg.UnitPrice)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), digest.Format(summary))
		return nil
	}

	if rt.cfg.SlackBotToken == "" || rt.cfg.DigestChannelID == "" {
		return errors.New("--post needs slack_bot_token and digest_channel_id")
	}
	scheduler := &digest.Scheduler{
		Store:     store,
		Poster:    rt.slackClient(),
		ChannelID: rt.cfg.DigestChannelID,
		Location:  rt.cfg.Location,
		UnitPrice: rt.cfg.UnitPrice,
		Logger:    rt.logger,
	}
	text, err := scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
