package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx, records Exec statements and fails Commit while commitErrs is non-empty.
type fakeTx struct {
	stmts      []string
	commitErrs []error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error {
	if len(f.commitErrs) > 0 {
		err := f.commitErrs[0]
		f.commitErrs = f.commitErrs[1:]
		return err
	}
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error { f.rolledBack = true; return nil }
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool hands out the same transaction and records the options of every BeginTx.
type fakePool struct {
	tx    *fakeTx
	opts  []pgx.TxOptions
	execs []string
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.opts = append(p.opts, txOptions)
	return p.tx, nil
}
func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	return pgconn.CommandTag{}, nil
}
func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func serializationFailure() error {
	return &pgconn.PgError{Code: pgSerializationFailure, Message: "could not serialize access"}
}

func TestDBConnUsesTransactionFromContext(t *testing.T) {
	ftx := &fakeTx{}
	pool := &fakePool{tx: ftx}
	db := &DB{pool: pool, maxRetries: defaultSerializableRetries}
	ctx := context.Background()

	_, err := db.Conn(ctx).Exec(ctx, "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, []string{"SELECT 1"}, pool.execs)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		_, err := db.Conn(ctx).Exec(ctx, "SELECT 2")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{"SELECT 2"}, ftx.stmts)
	require.True(t, ftx.committed)
}

func TestDBWithTxJoinsOuterTransaction(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &DB{pool: pool, maxRetries: defaultSerializableRetries}

	err := db.WithSerializable(context.Background(), func(ctx context.Context) error {
		return db.WithTx(ctx, func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	require.Len(t, pool.opts, 1)
	require.Equal(t, pgx.Serializable, pool.opts[0].IsoLevel)
}

func TestDBWithSerializableRetriesSerializationFailures(t *testing.T) {
	ftx := &fakeTx{commitErrs: []error{serializationFailure(), serializationFailure()}}
	pool := &fakePool{tx: ftx}
	db := &DB{pool: pool, maxRetries: defaultSerializableRetries}

	calls := 0
	err := db.WithSerializable(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, ftx.committed)
}

func TestDBWithSerializableGivesUpAfterRetries(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &DB{pool: pool, maxRetries: 2}

	calls := 0
	err := db.WithSerializable(context.Background(), func(ctx context.Context) error {
		calls++
		return serializationFailure()
	})
	require.Error(t, err)
	require.True(t, IsSerializationFailure(err))
	require.Equal(t, 3, calls)
}

func TestDBWithSerializableDoesNotRetryOtherErrors(t *testing.T) {
	ftx := &fakeTx{}
	db := &DB{pool: &fakePool{tx: ftx}, maxRetries: defaultSerializableRetries}
	boom := errors.New("boom")

	calls := 0
	err := db.WithSerializable(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.True(t, ftx.rolledBack)
	require.False(t, ftx.committed)
}

func TestAfterCommitRunsOnlyOnCommit(t *testing.T) {
	ctx := context.Background()

	ran := 0
	AfterCommit(ctx, func(context.Context) { ran++ })
	require.Equal(t, 1, ran, "runs immediately outside a transaction")

	ftx := &fakeTx{}
	db := &DB{pool: &fakePool{tx: ftx}, maxRetries: defaultSerializableRetries}
	err := db.WithTx(ctx, func(ctx context.Context) error {
		AfterCommit(ctx, func(ctx context.Context) {
			require.False(t, InTx(ctx))
			ran++
		})
		require.Equal(t, 1, ran, "deferred until commit")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, ran)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { ran++ })
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 2, ran, "dropped on rollback")
}

func TestAfterCommitDropsHooksOfRetriedAttempts(t *testing.T) {
	ftx := &fakeTx{commitErrs: []error{serializationFailure()}}
	db := &DB{pool: &fakePool{tx: ftx}, maxRetries: defaultSerializableRetries}

	ran := 0
	err := db.WithSerializable(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { ran++ })
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, ran)
}
