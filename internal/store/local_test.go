package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMemoryStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func texts(fs []Fragment) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Text
	}
	return out
}

func TestAppendAndAll(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	stored, err := s.Append(ctx, "chatgpt", []string{"buy AAPL", "sell TSLA", "buy GOOG"})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].ID, stored[i-1].ID)
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(stored, all, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("All() mismatch (-appended +read):\n%s", diff)
	}
	assert.True(t, all[0].CreatedAt.Equal(fixed))
	assert.Equal(t, "chatgpt", all[0].Site)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	stored, err := s.Append(ctx, "claude", nil)
	require.NoError(t, err)
	assert.Nil(t, stored)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDuplicatesAreKept(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	_, err := s.Append(ctx, "grok", []string{"same"})
	require.NoError(t, err)
	_, err = s.Append(ctx, "grok", []string{"same"})
	require.NoError(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"same", "same"}, texts(all))
}

func TestWhitespaceFragmentsStoredVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	_, err := s.Append(ctx, "find", []string{"  padded\n", ""})
	require.NoError(t, err)
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"  padded\n", ""}, texts(all))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chathud.db")

	s, err := NewLocalStore(path)
	require.NoError(t, err)
	first, err := s.Append(ctx, "mistral", []string{"one", "two"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewLocalStore(path)
	require.NoError(t, err)
	defer s.Close()

	second, err := s.Append(ctx, "mistral", []string{"three"})
	require.NoError(t, err)
	assert.Greater(t, second[0].ID, first[1].ID)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, texts(all))
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(s.GetDB()))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newMemoryStore(t)

	res, err := RunMigrations(s.GetDB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, res.FromVersion)
	assert.Zero(t, res.MigrationsRun)

	var idx string
	require.NoError(t, s.GetDB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_fragments_text'").Scan(&idx))
	assert.Equal(t, "idx_fragments_text", idx)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	_, err := s.Append(ctx, "chatgpt", []string{"a", "b"})
	require.NoError(t, err)
	_, err = s.Append(ctx, "lmarena", []string{"c"})
	require.NoError(t, err)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"chatgpt": 2, "lmarena": 1}, stats)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Append(ctx, "chatgpt", []string{"x"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.All(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
