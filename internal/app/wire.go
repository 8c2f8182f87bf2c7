//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/config"
)

// InitializeApp assembles an App from cfg.
func InitializeApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
