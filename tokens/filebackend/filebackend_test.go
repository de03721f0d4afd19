package filebackend_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/tokens/filebackend"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secportal")
	backend, err := filebackend.New(dir)
	require.NoError(t, err)

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := backend.Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, backend.Set(tokens.KeyTokens, []byte(`{"access":"a","refresh":"r"}`)))
		data, ok, err := backend.Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, `{"access":"a","refresh":"r"}`, string(data))
	})

	t.Run("private permissions", func(t *testing.T) {
		info, err := os.Stat(filepath.Join(dir, tokens.KeyTokens+".json"))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, backend.Delete(tokens.KeyTokens, tokens.KeyProfile))
		require.NoError(t, backend.Delete(tokens.KeyTokens))
		_, ok, err := backend.Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("survives a new process", func(t *testing.T) {
		store := tokens.NewStore(backend)
		require.NoError(t, store.Save(tokens.Pair{Access: "a1", Refresh: "r1"}))

		reopened, err := filebackend.New(dir)
		require.NoError(t, err)
		pair, err := tokens.NewStore(reopened).Load()
		require.NoError(t, err)
		require.Equal(t, "r1", pair.Refresh)
	})
}

func TestRepo(t *testing.T) {
	repo, err := filebackend.NewRepo(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	t.Run("namespaces are created on first write", func(t *testing.T) {
		ns := repo.Namespace("sess-1")
		_, ok, err := ns.Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 0, repo.Len())

		require.NoError(t, ns.Set(tokens.KeyTokens, []byte(`{"access":"a","refresh":"r"}`)))
		require.Equal(t, 1, repo.Len())
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		_, ok, err := repo.Namespace("sess-2").Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("namespaces cannot escape the root", func(t *testing.T) {
		require.NoError(t, repo.Namespace("../../escape").Set(tokens.KeyProfile, []byte(`{}`)))
		require.Equal(t, 2, repo.Len())
		repo.Drop("../../escape")
		require.Equal(t, 1, repo.Len())
	})

	t.Run("drop", func(t *testing.T) {
		repo.Drop("sess-1")
		require.Equal(t, 0, repo.Len())
		_, ok, err := repo.Namespace("sess-1").Get(tokens.KeyTokens)
		require.NoError(t, err)
		require.False(t, ok)
	})
}
