package cmd

import (
	"log/slog"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/adapter/discovery"
	"github.com/helphub/relay-service/internal/adapter/msglog"
	"github.com/helphub/relay-service/internal/domain/registry"
	"github.com/helphub/relay-service/internal/handler/admin"
	"github.com/helphub/relay-service/internal/handler/console"
	"github.com/helphub/relay-service/internal/handler/tcp"
	"github.com/helphub/relay-service/internal/handler/ws"
	"github.com/helphub/relay-service/internal/observability"
	"github.com/helphub/relay-service/internal/service"
	"github.com/helphub/relay-service/internal/store"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideMessageLog,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
		observability.Module,
		registry.Module,
		store.Module,
		service.Module,
		tcp.Module,
		ws.Module,
		admin.Module,
		console.Module,
		discovery.Module,
	)
}

func ProvideLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("HELPHUB_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideMessageLog(cfg *config.Config, lc fx.Lifecycle) (*msglog.Log, error) {
	log, err := msglog.New(cfg.MessageLogPath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(log.Close))
	return log, nil
}
