package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
// Multi-step mutations (seat claims, request reviews) run in a transaction
// with row locks so concurrent callers observe the same invariants as the
// in-memory backend.
type Store struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
	now  func() time.Time

	// Lifecycle
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStore creates a PostgreSQL-backed store on top of a shared pool.
func NewStore(pool *pgxpool.Pool, cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Store{
		pool:   pool,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins background pool monitoring.
func (s *Store) Start() error {
	log.Info().Msg("Starting PostgreSQL store")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorConnectionPool()
	}()

	return nil
}

// Stop waits for background tasks and closes the pool.
func (s *Store) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping PostgreSQL store")
		close(s.stopCh)
		s.wg.Wait()
		s.pool.Close()
		log.Info().Msg("PostgreSQL store stopped")
	})
	return nil
}

// monitorConnectionPool logs connection pool statistics periodically.
func (s *Store) monitorConnectionPool() {
	ticker := time.NewTicker(time.Duration(s.cfg.PoolStatsIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Int64("acquire_duration_ns", stats.AcquireDuration().Nanoseconds()).
				Msg("Connection pool stats")
		case <-s.stopCh:
			return
		}
	}
}

// queryContext bounds a single store call by the configured query timeout.
func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSeconds)*time.Second)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// jsonParam converts raw JSON to a JSONB parameter, NULL when empty.
func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
