package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

var (
	// ErrReadOnlyTransaction は読み取り専用トランザクションの中で読み書きを要求した場合に返却されます。
	ErrReadOnlyTransaction = errors.New("postgres: read-write requested inside read-only transaction")
	// ErrLockOutsideTransaction は行ロックを読み書きトランザクションの外で要求した場合に返却されます。
	ErrLockOutsideTransaction = errors.New("postgres: row lock requires a read-write transaction")
)

type txContextKey struct{}

// txState はコンテキストに格納する実行中トランザクションです。
type txState struct {
	tx   pgx.Tx
	mode pgx.TxAccessMode
}

type txStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TransactionManager は pgx を用いたトランザクション制御を提供します。
// 同じコンテキストで入れ子になった呼び出しは外側のトランザクションを再利用します。
type TransactionManager struct {
	pool txStarter
	log  logrus.FieldLogger
}

// TxOption は TransactionManager の設定を変更します。
type TxOption func(*TransactionManager)

// WithTxLogger はロールバック失敗などを記録するロガーを指定します。
func WithTxLogger(log logrus.FieldLogger) TxOption {
	return func(m *TransactionManager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewTransactionManager は TransactionManager を生成します。
func NewTransactionManager(pool txStarter, opts ...TxOption) *TransactionManager {
	if pool == nil {
		return nil
	}
	m := &TransactionManager{pool: pool, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithinReadOnly は読み取り専用トランザクションを開始し、fn を実行します。
func (m *TransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}
	return m.within(ctx, pgx.ReadOnly, fn)
}

// WithinReadWrite は読み書きトランザクションを開始し、fn を実行します。
// 社員行の更新はこの中で FOR UPDATE による行ロックを取得してから行います。
func (m *TransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}
	return m.within(ctx, pgx.ReadWrite, fn)
}

func (m *TransactionManager) within(ctx context.Context, mode pgx.TxAccessMode, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("postgres: transaction function is required")
	}

	if current, ok := stateFromContext(ctx); ok {
		if mode == pgx.ReadWrite && current.mode == pgx.ReadOnly {
			return ErrReadOnlyTransaction
		}
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
	if err != nil {
		return fmt.Errorf("postgres: begin %s tx: %w", mode, err)
	}

	committed := false
	defer func() {
		if !committed {
			m.rollback(ctx, tx)
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, &txState{tx: tx, mode: mode})); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}

	committed = true
	return nil
}

func (m *TransactionManager) rollback(ctx context.Context, tx pgx.Tx) {
	// 呼び出し元のキャンセル後でもロックを解放する
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		m.log.WithError(err).Warn("postgres: rollback failed")
	}
}

func stateFromContext(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(txContextKey{}).(*txState)
	return st, ok
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	st, ok := stateFromContext(ctx)
	if !ok {
		return nil, false
	}
	return st.tx, true
}

// InReadWriteTx はコンテキストに読み書きトランザクションが存在するかを返します。
func InReadWriteTx(ctx context.Context) bool {
	st, ok := stateFromContext(ctx)
	return ok && st.mode == pgx.ReadWrite
}

// QueryerFromContext はコンテキスト内にトランザクションが存在すればそれを返し、存在しなければ fallback を返します。
func QueryerFromContext(ctx context.Context, fallback Queryer) Queryer {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return fallback
}

// Queryer は pgx.Tx および pgxpool.Pool と互換性のあるクエリ実行インターフェースです。
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
