package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx кладёт открытую транзакцию в контекст.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext возвращает транзакцию из контекста, если она есть.
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Conn возвращает транзакцию из контекста либо базовый *gorm.DB.
// Репозитории ходят в БД только через Conn, поэтому внутри RunInTx
// все запросы автоматически попадают в одну транзакцию.
func Conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}

// TxRunner открывает транзакции.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type GormTxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{db: db}
}

// RunInTx выполняет fn в транзакции. Вложенный вызов переиспользует внешнюю транзакцию.
func (r *GormTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
