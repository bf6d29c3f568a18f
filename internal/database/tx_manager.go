package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type txKey struct{}

// TxManager runs a function inside a single database transaction.
// Repositories pick the transaction up from the context.
type TxManager struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sqlx.DB, logger *logrus.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

// WithinTransaction commits when fn returns nil and rolls back otherwise.
// Nested calls join the outer transaction.
func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// conn returns the transaction bound to ctx, or the pool
func conn(ctx context.Context, db *sqlx.DB) queryer {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db
}
