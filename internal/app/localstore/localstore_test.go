package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "sb-ref-auth-token", `{"access_token":"a"}`))
	v, err := s.Get(ctx, "sb-ref-auth-token")
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"a"}`, v)

	require.NoError(t, s.Set(ctx, "sb-ref-auth-token", `{"access_token":"b"}`))
	v, err = s.Get(ctx, "sb-ref-auth-token")
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"b"}`, v)

	require.NoError(t, s.Delete(ctx, "sb-ref-auth-token"))
	_, err = s.Get(ctx, "sb-ref-auth-token")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "never-set"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "local.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "persisted", "yes"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}
