package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string         `json:"name"`
	Count map[string]int `json:"count"`
}

func exerciseStore(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	var got doc
	found, err := s.Load(ctx, "quota", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := doc{Name: "scalp", Count: map[string]int{"A+": 2}}
	require.NoError(t, s.Save(ctx, "quota", want))

	found, err = s.Load(ctx, "quota", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	_, err = os.Stat(filepath.Join(dir, "quota.json"))
	assert.NoError(t, err)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644))
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	var d doc
	_, err = s.Load(context.Background(), "bad", &d)
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "sentinel:"})
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	exerciseStore(t, s)
	assert.True(t, mr.Exists("sentinel:quota"))
}
