package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *bool:
			*p = row[i].(bool)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	rows     [][]any
	queryErr error
	execErr  error
	queries  []execCall
	execs    []execCall
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, execCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{rows: f.rows}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func TestPGSourceForUser(t *testing.T) {
	ts := time.Date(2024, 11, 16, 10, 30, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]any{
		{"notif_001", "1", "donation_approved", "Donation Approved!", "msg", ts, false, "/dashboard/donations/don_001"},
		{"notif_002", "1", "request_received", "New Request Received", "msg", ts.Add(time.Hour), true, "/dashboard/requests/req_001"},
	}}
	src := NewPGSource(db)

	got, err := src.ForUser(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "notif_001", got[0].ID)
	assert.False(t, got[0].Read)
	assert.True(t, got[1].Read)
	assert.Equal(t, ts, got[0].Timestamp)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0].sql, "ORDER BY seq ASC")
	assert.Equal(t, []any{"1"}, db.queries[0].args)
}

func TestPGSourceQueryError(t *testing.T) {
	src := NewPGSource(&fakeDB{queryErr: errors.New("connection refused")})
	_, err := src.ForUser(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPGSourceMarkReadOnlySetsTrue(t *testing.T) {
	db := &fakeDB{}
	src := NewPGSource(db)
	require.NoError(t, src.MarkRead(context.Background(), "1", "notif_001"))

	require.Len(t, db.execs, 1)
	assert.True(t, strings.Contains(db.execs[0].sql, "SET read = TRUE"))
	assert.Contains(t, db.execs[0].sql, "read = FALSE")
	assert.Equal(t, []any{"notif_001", "1"}, db.execs[0].args)
}

func TestPGSourceInsertAndSchema(t *testing.T) {
	db := &fakeDB{}
	src := NewPGSource(db)
	ctx := context.Background()

	require.NoError(t, src.EnsureSchema(ctx))
	for _, n := range SeedNotifications() {
		require.NoError(t, src.Insert(ctx, n))
	}
	require.Len(t, db.execs, 1+len(SeedNotifications()))
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS notifications")
	assert.Contains(t, db.execs[1].sql, "ON CONFLICT (id) DO NOTHING")

	db.execErr = errors.New("boom")
	assert.Error(t, src.Insert(ctx, Notification{ID: "x"}))
}

func TestLedgerOverPGSource(t *testing.T) {
	ts := time.Now().UTC()
	db := &fakeDB{rows: [][]any{
		{"n1", "7", "t", "title", "m", ts, false, "/x"},
	}}
	l := NewLedger(NewPGSource(db), nil)
	ctx := context.Background()
	require.NoError(t, l.Hydrate(ctx, "7"))
	require.True(t, l.MarkRead(ctx, "n1"))
	require.Len(t, db.execs, 1)
	assert.Equal(t, 0, l.UnreadCount())
}
