package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemion/mnemion/pkg/persistence"
	"github.com/mnemion/mnemion/pkg/persistence/postgresql"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, claimTTL time.Duration) persistence.Persistence {
	store, err := postgresql.NewPersistence(ctx, logger, databaseURL, claimTTL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return store
}
