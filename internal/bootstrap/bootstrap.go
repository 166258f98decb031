package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/redis/go-redis/v9"

	azureclient "github.com/GregMSThompson/skiploss-console/internal/client/azure"
	"github.com/GregMSThompson/skiploss-console/internal/client/gateway"
	vertexclient "github.com/GregMSThompson/skiploss-console/internal/client/vertex"
	"github.com/GregMSThompson/skiploss-console/internal/config"
	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

// ChatClient is the chat completion provider selected by configuration.
type ChatClient interface {
	Complete(ctx context.Context, settings models.ChatSettings, req dto.ChatRequest) (dto.ChatMessage, error)
	MissingSettings(settings models.ChatSettings) []string
}

type Bootstrap struct {
	Log      *slog.Logger
	Chat     ChatClient
	Gateway  *gateway.Client
	Firebase *auth.Client
	Redis    *redis.Client

	closers []func() error
}

func Run(cfg *config.Config) (*Bootstrap, error) {
	var err error
	applicationCtx := context.Background()
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	applicationCtx = logger.ToContext(applicationCtx, bs.Log)

	if cfg.ChatAPIKeySecret != "" {
		cfg.ChatAPIKey, err = LoadSecret(applicationCtx, cfg.ProjectID, cfg.ChatAPIKeySecret)
		if err != nil {
			return bs, fmt.Errorf("load chat api key: %w", err)
		}
	}

	bs.Gateway = gateway.NewClient(cfg.GatewayBaseURL, gateway.WithHTTPClient(gateway.NewHTTPClient(cfg.GatewayTimeout)))

	switch cfg.ChatProvider {
	case models.ChatProviderVertex:
		adapter, err := vertexclient.NewAdapter(applicationCtx, bs.Log, cfg.ProjectID, cfg.Region, cfg.VertexModel)
		if err != nil {
			return bs, fmt.Errorf("init vertex: %w", err)
		}
		bs.closers = append(bs.closers, adapter.Close)
		bs.Chat = adapter
	default:
		bs.Chat = azureclient.NewAdapter(&http.Client{Timeout: cfg.ChatTimeout})
	}

	if cfg.AuthEnabled {
		bs.Firebase, err = InitFirebase(applicationCtx)
		if err != nil {
			return bs, fmt.Errorf("init firebase: %w", err)
		}
	}

	if cfg.RedisAddr != "" {
		bs.Redis, err = InitRedis(applicationCtx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return bs, fmt.Errorf("init redis: %w", err)
		}
		bs.closers = append(bs.closers, bs.Redis.Close)
	}

	bs.Log.Info("bootstrap complete",
		"chat_provider", cfg.ChatProvider,
		"auth", cfg.AuthEnabled,
		"redis_lock", bs.Redis != nil)
	return bs, nil
}

// Close releases clients in reverse order of creation.
func (b *Bootstrap) Close() error {
	var errList []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
