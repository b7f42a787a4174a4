package secondlevel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/models"
)

type stepClock struct{ v atomic.Int64 }

func (c *stepClock) Now() int64 { return c.v.Add(10) }

type brokenStore struct{}

var errStoreDown = errors.New("connection refused")

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errStoreDown }
func (brokenStore) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, errStoreDown }
func (brokenStore) Delete(context.Context, ...string) error                   { return errStoreDown }
func (brokenStore) DeletePrefix(context.Context, string) error                { return errStoreDown }

func newRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	registry, err := mapping.NewRegistry(models.AttractionCatalog()...)
	require.NoError(t, err)
	return registry
}

func newTestCache(t *testing.T, store cache.Store) *Cache {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryStore()
	}
	c, err := New(Options{
		Store:    store,
		Registry: newRegistry(t),
		Clock:    &stepClock{},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func contactSnapshot(fone, attraction string) EntityEntry {
	return EntityEntry{
		Type:         models.ClassAttractionContactInfo,
		Fields:       map[string]any{"fone": fone},
		Associations: map[string]string{"attraction": attraction},
	}
}

func attractionSnapshot(name string) EntityEntry {
	return EntityEntry{
		Type:   models.ClassAttraction,
		Fields: map[string]any{"name": name},
	}
}
