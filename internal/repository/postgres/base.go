package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository. metrics may be nil.
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// track counts one database operation and its outcome.
func (r *BaseRepository) track(operation string, err error) {
	if r.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.metrics.DatabaseOperations.WithLabelValues(operation, result).Inc()
}
