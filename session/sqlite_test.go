package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) (*SQLiteBackend, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.db")
	backend, err := OpenSQLiteBackend(SQLiteConfig{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend, path
}

func TestOpenSQLiteBackendRequiresPath(t *testing.T) {
	_, err := OpenSQLiteBackend(SQLiteConfig{})
	require.Error(t, err)
}

func TestSQLiteBackendMigratesSchema(t *testing.T) {
	backend, _ := openTestSQLite(t)

	var name string
	err := backend.DB().QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'credential_entries'`,
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "credential_entries", name)
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	backend, _ := openTestSQLite(t)
	store := NewCredentialStore(backend, "sq")
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UnixMilli()
	store.Write(ctx, &Session{
		Identity:   Identity{Email: "a@b.com"},
		Credential: "tok",
		ExpiresAt:  exp,
	})

	got := store.Read(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Credential)
	assert.Equal(t, "a@b.com", got.Identity.Email)
	assert.Nil(t, got.Identity.DisplayName)
	assert.Equal(t, exp, got.ExpiresAt)

	store.Clear(ctx)
	assert.Nil(t, store.Read(ctx))

	var n int
	require.NoError(t, backend.DB().QueryRow(`SELECT COUNT(*) FROM credential_entries`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteBackendSurvivesReopen(t *testing.T) {
	backend, path := openTestSQLite(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UnixMilli()
	NewCredentialStore(backend, "persist").Write(ctx, &Session{
		Identity:   Identity{Email: "a@b.com", DisplayName: strPtr("Ada")},
		Credential: "tok",
		ExpiresAt:  exp,
	})
	require.NoError(t, backend.Close())

	reopened, err := OpenSQLiteBackend(SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got := NewCredentialStore(reopened, "persist").Read(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Credential)
	require.NotNil(t, got.Identity.DisplayName)
	assert.Equal(t, "Ada", *got.Identity.DisplayName)
}

func TestSQLiteBackendUpsertOverwrites(t *testing.T) {
	backend, _ := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.SetAll(ctx, map[string]string{"k": "v1"}, 0))
	require.NoError(t, backend.SetAll(ctx, map[string]string{"k": "v2"}, 0))

	v, found, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", v)
}

func TestSQLiteBackendExpiredRowsReadAsMissing(t *testing.T) {
	backend, _ := openTestSQLite(t)
	ctx := context.Background()

	clock := newFakeClock()
	backend.now = clock.Now

	require.NoError(t, backend.SetAll(ctx, map[string]string{"k": "v"}, time.Minute))
	_, found, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	clock.Advance(time.Minute)
	_, found, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteBackendDeleteMissingIsNoop(t *testing.T) {
	backend, _ := openTestSQLite(t)
	require.NoError(t, backend.DeleteAll(context.Background(), "a", "b"))
}

func TestRestoreExpiredSQLiteSessionEmptiesTable(t *testing.T) {
	backend, _ := openTestSQLite(t)
	ctx := context.Background()

	clock := newFakeClock()
	backend.now = clock.Now
	store := NewCredentialStore(backend, "restore", WithStoreClock(clock.Now))
	store.Write(ctx, &Session{
		Identity:   Identity{Email: "a@b.com"},
		Credential: "tok",
		ExpiresAt:  clock.Now().Add(50 * time.Millisecond).UnixMilli(),
	})

	clock.Advance(100 * time.Millisecond)
	mgr := NewManager(store, nil, Config{}, WithClock(clock.Now))
	assert.Equal(t, StateAnonymous, mgr.Restore(ctx))

	var n int
	require.NoError(t, backend.DB().QueryRow(`SELECT COUNT(*) FROM credential_entries`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteBackendWritePurgesElapsedRows(t *testing.T) {
	backend, _ := openTestSQLite(t)
	ctx := context.Background()

	clock := newFakeClock()
	backend.now = clock.Now

	require.NoError(t, backend.SetAll(ctx, map[string]string{"old": "v"}, time.Minute))
	clock.Advance(2 * time.Minute)
	require.NoError(t, backend.SetAll(ctx, map[string]string{"new": "v"}, time.Minute))

	var n int
	require.NoError(t, backend.DB().QueryRow(`SELECT COUNT(*) FROM credential_entries WHERE key = 'old'`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteBusyTimeoutOnEveryConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	backend, err := OpenSQLiteBackend(SQLiteConfig{Path: path, BusyTimeout: 1234 * time.Millisecond})
	require.NoError(t, err)
	defer backend.Close()

	// recycle the pooled connection
	backend.DB().SetConnMaxLifetime(time.Nanosecond)
	time.Sleep(time.Millisecond)

	var timeout int
	require.NoError(t, backend.DB().QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 1234, timeout)
}
