package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/config"
)

// New builds the Store selected by cfg.Backend. The embedding dimension is
// fixed at construction; all backends reject vectors of any other length.
func New(ctx context.Context, cfg config.StoreConfig, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:       cfg.Postgres.DSN,
			Dimension: dimension,
		}, logger)
	case "chromem":
		return NewChromemStore(ChromemStoreConfig{
			Path:      cfg.Chromem.Path,
			Compress:  cfg.Chromem.Compress,
			Dimension: dimension,
		}, logger)
	case "qdrant":
		return NewQdrantStore(QdrantStoreConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
