// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"conductor-chat/internal/config"
	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/adapters/gateway"
	"conductor-chat/internal/infra/db/memory"
	pg "conductor-chat/internal/infra/db/postgres"
	"conductor-chat/internal/infra/i18n"
	"conductor-chat/internal/infra/logging"
	"conductor-chat/internal/infra/metrics"
	red "conductor-chat/internal/infra/redis"
	"conductor-chat/internal/infra/sched"
	"conductor-chat/internal/infra/security"
	"conductor-chat/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	cfgPath  string
	dev      bool
	noStream bool
}

func main() {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "conductor-chat",
		Short:         "Chat client for the Conductor agent gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "enable developer mode (debug logs, unredacted text)")
	root.PersistentFlags().BoolVar(&flags.noStream, "no-stream", false, "skip the event stream and call the direct endpoint")

	root.AddCommand(sendCmd(&flags), chatCmd(&flags), healthCmd(&flags), historyCmd(&flags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a command needs once config is loaded.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	texts   *i18n.Translator
	chat    usecase.ChatUseCase
	store   repository.ChatHistoryRepository // backend before any wrapping
	pruner  repository.HistoryPruner
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func bootstrap(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := config.LoadConfig(flags.cfgPath, flags.dev)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		log.Debug().Msg("[DEV MODE] Enabled")
	}

	a := &app{cfg: cfg, log: log, texts: i18n.MustDefault(cfg.Locale)}

	history, err := a.openHistory(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = history
	if p, ok := history.(repository.HistoryPruner); ok && cfg.History.Retention > 0 {
		a.pruner = p
	}
	if key := cfg.History.EncryptionKey; key != "" {
		enc, err := security.NewEncryptionService(key)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history encryption: %w", err)
		}
		history = security.NewEncryptedHistory(history, enc)
	}

	conductor, err := gateway.NewConductorAdapter(cfg.Gateway, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	gw := gateway.NewLimitedGateway(conductor, cfg.Gateway.ConcurrentLimit)

	a.chat = usecase.NewChatUseCase(gw, history, a.texts, usecase.ChatOptions{
		Conversation: cfg.History.Conversation,
		Streaming:    cfg.Features.Streaming() && !flags.noStream,
		Fallback:     cfg.Features.Fallback(),
		Dev:          cfg.Runtime.Dev,
	}, log)

	log.Debug().
		Str("base_url", cfg.Gateway.BaseURL).
		Str("history", cfg.History.Backend).
		Bool("streaming", cfg.Features.Streaming() && !flags.noStream).
		Bool("fallback", cfg.Features.Fallback()).
		Msg("client ready")
	return a, nil
}

func (a *app) openHistory(ctx context.Context) (repository.ChatHistoryRepository, error) {
	limit := a.cfg.History.MaxMessages
	switch a.cfg.History.Backend {
	case "redis":
		client, err := red.NewClient(ctx, &a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return red.NewChatHistory(client, a.cfg.Redis.TTL, limit), nil
	case "postgres":
		pool, err := pg.Connect(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg.NewChatHistoryRepo(pool, limit), nil
	default:
		return memory.NewChatHistory(limit), nil
	}
}

// runServices runs fn alongside the long-lived helpers that are configured:
// the /metrics listener and the history retention worker. They stop once fn returns.
func (a *app) runServices(ctx context.Context, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	svcCtx, stopServices := context.WithCancel(gctx)

	if a.pruner != nil {
		w := sched.NewRetentionWorker(0, a.cfg.History.Retention, a.pruner, a.log)
		g.Go(func() error {
			if err := w.Run(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.log.Info().Str("addr", srv.Addr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-svcCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopServices()
		return fn(gctx)
	})
	return g.Wait()
}
