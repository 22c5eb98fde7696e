package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// exerciseKV runs the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()
	k := Key{KindStream, 7}

	_, err := kv.Get(ctx, k)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, k, []byte("one")))
	require.NoError(t, kv.Set(ctx, k, []byte("two")))
	got, err := kv.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	err = kv.Apply(ctx, []Write{
		{Key: Key{KindReceipt, 7}, Value: []byte("r")},
		{Key: k, Value: nil},
	})
	require.NoError(t, err)
	_, err = kv.Get(ctx, k)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err = kv.Get(ctx, Key{KindReceipt, 7})
	require.NoError(t, err)
	assert.Equal(t, []byte("r"), got)

	require.NoError(t, kv.Remove(ctx, Key{KindReceipt, 7}))
	_, err = kv.Get(ctx, Key{KindReceipt, 7})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	kv, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "streams.db"))
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.Error(t, err)
}

func TestDialectRebind(t *testing.T) {
	assert.Equal(t, queryGet, SQLite.Rebind(queryGet))
	assert.Equal(t,
		`INSERT INTO records (kind, id, value) VALUES ($1, $2, $3) ON CONFLICT (kind, id) DO UPDATE SET value = excluded.value`,
		Postgres.Rebind(queryUpsert))
}

func TestPostgres_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQL(db, Postgres)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM records WHERE kind = $1 AND id = $2")).
		WithArgs("stream", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"id":1}`)))
	got, err := kv.Get(ctx, Key{KindStream, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":1}`), got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM records WHERE kind = $1 AND id = $2")).
		WithArgs("stream", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, err = kv.Get(ctx, Key{KindStream, 2})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyIsTransactional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQL(db, Postgres)
	upsert := regexp.QuoteMeta("INSERT INTO records (kind, id, value) VALUES ($1, $2, $3)")

	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("stream", int64(1), []byte("a")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WithArgs("receipt", int64(1), []byte("b")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = kv.Apply(context.Background(), []Write{
		{Key: Key{KindStream, 1}, Value: []byte("a")},
		{Key: Key{KindReceipt, 1}, Value: []byte("b")},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("stream", int64(2), []byte("a")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WithArgs("receipt", int64(2), []byte("b")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = kv.Apply(context.Background(), []Write{
		{Key: Key{KindStream, 2}, Value: []byte("a")},
		{Key: Key{KindReceipt, 2}, Value: []byte("b")},
	})
	assert.ErrorContains(t, err, "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(NewMemory())

	_, err := r.Stream(ctx, 1)
	assert.ErrorIs(t, err, stream.ErrStreamNotFound)
	_, err = r.Proposal(ctx, 1)
	assert.ErrorIs(t, err, stream.ErrProposalNotFound)

	seq, err := r.Sequence(ctx, KindStream)
	require.NoError(t, err)
	assert.Zero(t, seq)

	cliff := int64(50)
	s := &stream.Stream{
		ID: 1, Sender: "alice", Receiver: "bob", Token: "XLM",
		TotalAmount: 1000, StartTime: 0, EndTime: 100, CliffTime: &cliff,
		Curve:      stream.CurveExponential,
		Milestones: []stream.Milestone{{Timestamp: 50, Percentage: 40}},
		Vault:      &stream.VaultPosition{Vault: "v1", Principal: 1000, Shares: 900},
	}
	var b Batch
	b.PutStream(s)
	b.PutReceipt(&stream.Receipt{StreamID: 1, Owner: "bob", MintedAt: 5})
	b.SetSequence(KindStream, 1)
	s.WithdrawnAmount = 10
	b.PutStream(s)
	assert.Equal(t, 3, b.Len(), "rewriting a key replaces the pending write")
	require.NoError(t, r.Commit(ctx, &b))

	got, err := r.Stream(ctx, 1)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("stream mismatch (-want +got):\n%s", diff)
	}

	rc, err := r.Receipt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stream.Address("bob"), rc.Owner)

	seq, err = r.Sequence(ctx, KindStream)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	seq, err = r.Sequence(ctx, KindProposal)
	require.NoError(t, err)
	assert.Zero(t, seq)
}
