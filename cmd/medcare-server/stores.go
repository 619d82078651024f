package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medcare/medcare/internal/config"
	"github.com/medcare/medcare/internal/domain/identity"
	"github.com/medcare/medcare/internal/domain/notification"
	"github.com/medcare/medcare/internal/domain/scheduling"
	"github.com/medcare/medcare/internal/platform/db"
)

// stores is the set of repositories the services run on. pool is nil when
// memory is true.
type stores struct {
	pool          *pgxpool.Pool
	memory        bool
	users         identity.UserRepository
	appointments  scheduling.AppointmentRepository
	notifications notification.Repository
}

func memoryStores() *stores {
	return &stores{
		memory:        true,
		users:         identity.NewMemoryUserRepo(),
		appointments:  scheduling.NewMemoryAppointmentRepo(),
		notifications: notification.NewMemoryRepo(),
	}
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		pool:          pool,
		users:         identity.NewUserRepoPG(pool),
		appointments:  scheduling.NewAppointmentRepoPG(pool),
		notifications: notification.NewRepoPG(pool),
	}
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// openStores connects to Postgres. When that fails and DEMO_FALLBACK is set
// the in-memory stores are used instead; data then lives only as long as
// the process.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if !cfg.DemoFallback {
			return nil, errors.New("DATABASE_URL is not set")
		}
		logger.Warn().Msg("no DATABASE_URL configured, running on in-memory demo stores")
		return memoryStores(), nil
	}

	pool, err := db.NewPool(ctx, db.Options{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBTimeout,
	})
	if err != nil {
		if !cfg.DemoFallback {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Warn().Err(err).Msg("database unreachable, running on in-memory demo stores")
		return memoryStores(), nil
	}
	logger.Info().Msg("connected to database")
	return postgresStores(pool), nil
}

// userDirectory lets the scheduler resolve doctors and patients through the
// identity service.
type userDirectory struct {
	users *identity.Service
}

func (d userDirectory) Lookup(ctx context.Context, id uuid.UUID) (*scheduling.Person, error) {
	u, err := d.users.GetUser(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, nil
	}
	return &scheduling.Person{ID: u.ID, Name: u.Name, Role: u.Role}, nil
}
