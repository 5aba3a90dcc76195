package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/config"
	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/persistence"
	"github.com/spec-kit/activity-tracker/internal/repository"
)

type stores struct {
	users    repository.UserRepository
	statuses repository.StatusRepository
	sessions repository.SessionStore
}

// buildStores opens the user directory, status store and session store for
// the configured backend.
func buildStores(cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (stores, error) {
	if cfg.Tracker.Store == config.StorePostgres {
		pool := pg.PoolHandle()
		if pool == nil {
			return stores{}, fmt.Errorf("postgres store selected without a connection")
		}
		return stores{
			users:    repository.NewUserRepository(pool),
			statuses: repository.NewStatusRepository(pool),
			sessions: repository.NewPostgresSessionStore(pool),
		}, nil
	}

	var seed []domain.User
	if cfg.Tracker.SeedUsersFile != "" {
		loaded, err := repository.LoadSeedUsers(cfg.Tracker.SeedUsersFile, cfg.Auth.BcryptCost)
		if err != nil {
			return stores{}, err
		}
		seed = loaded
	} else {
		logger.Warn("TRACKER_SEED_USERS_FILE not set; user directory is empty")
	}
	users := repository.NewMemoryUserRepository(seed...)

	if cfg.Tracker.Store == config.StoreMemory {
		return stores{
			users:    users,
			statuses: repository.NewMemoryStatusRepository("", logger),
			sessions: repository.NewMemorySessionStore(),
		}, nil
	}

	sessions, err := repository.NewFileSessionStore(cfg.Tracker.DataDir, logger)
	if err != nil {
		return stores{}, err
	}
	return stores{
		users:    users,
		statuses: repository.NewMemoryStatusRepository(filepath.Join(cfg.Tracker.DataDir, "status.json"), logger),
		sessions: sessions,
	}, nil
}
