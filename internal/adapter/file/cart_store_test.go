package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type NoOpLogger struct{}

func (l *NoOpLogger) Init()                                       {}
func (l *NoOpLogger) Debug(args ...interface{})                   {}
func (l *NoOpLogger) Debugf(template string, args ...interface{}) {}
func (l *NoOpLogger) Info(args ...interface{})                    {}
func (l *NoOpLogger) Infof(template string, args ...interface{})  {}
func (l *NoOpLogger) Warn(args ...interface{})                    {}
func (l *NoOpLogger) Warnf(template string, args ...interface{})  {}
func (l *NoOpLogger) Error(args ...interface{})                   {}
func (l *NoOpLogger) Errorf(template string, args ...interface{}) {}
func (l *NoOpLogger) Fatal(args ...interface{})                   {}
func (l *NoOpLogger) Fatalf(template string, args ...interface{}) {}
func (l *NoOpLogger) With(args ...interface{}) logger.Logger      { return l }

func newTestStore(t *testing.T) (*cartStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewCartStore(dir, &NoOpLogger{})
	require.NoError(t, err)
	return store.(*cartStore), dir
}

func TestCartStore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sku := int64(3)
	lines := []entity.CartLine{
		{ID: 1, Name: "Shoe", Price: 250, Quantity: 2, ProductSkuID: &sku},
		{ID: 2, Name: "Hat", Price: 100, Quantity: 1},
	}
	require.NoError(t, store.Save(ctx, "session-a", lines))

	loaded, err := store.Load(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, lines[0].ID, loaded[0].ID)
	require.NotNil(t, loaded[0].ProductSkuID)
	assert.Equal(t, int64(3), *loaded[0].ProductSkuID)
	assert.Equal(t, "Hat", loaded[1].Name)
}

func TestCartStore_MissingSessionIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	lines, err := store.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestCartStore_CorruptFileIsEmpty(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session-a.json"), []byte("{{{"), 0o644))

	lines, err := store.Load(context.Background(), "session-a")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartStore_SaveNilWritesEmptyArray(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "session-a", nil))

	data, err := os.ReadFile(filepath.Join(dir, "session-a.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	lines, err := store.Load(ctx, "session-a")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartStore_Clear(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "session-a", []entity.CartLine{{ID: 1, Price: 10, Quantity: 1}}))
	require.NoError(t, store.Clear(ctx, "session-a"))

	_, err := os.Stat(filepath.Join(dir, "session-a.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCartStore_ClearMissingSessionIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.Clear(context.Background(), "never-saved"))
}

func TestCartStore_SessionsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "session-a", []entity.CartLine{{ID: 1, Price: 10, Quantity: 1}}))
	require.NoError(t, store.Save(ctx, "session-b", []entity.CartLine{{ID: 2, Price: 20, Quantity: 3}}))

	a, err := store.Load(ctx, "session-a")
	require.NoError(t, err)
	b, err := store.Load(ctx, "session-b")
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, int64(1), a[0].ID)
	assert.Equal(t, int64(2), b[0].ID)
}

func TestNewCartStore_EmptyDirRejected(t *testing.T) {
	_, err := NewCartStore("", &NoOpLogger{})
	assert.Error(t, err)
}
