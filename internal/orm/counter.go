package orm

import (
	"errors"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/models"
	"github.com/charlesng35/l2cache/internal/monitoring"
)

const callbackPrefix = "l2cache:count_"

// QueryCounter counts the statements a gorm handle sends to the canonical store.
// Statements against the cache_entries table are ignored so a database-backed cache
// store does not inflate the count.
type QueryCounter struct {
	total atomic.Int64

	mu   sync.Mutex
	byOp map[string]int64
}

// NewQueryCounter registers counting callbacks on db.
func NewQueryCounter(db *gorm.DB) (*QueryCounter, error) {
	if db == nil {
		return nil, errors.New("orm: db is required")
	}
	c := &QueryCounter{byOp: make(map[string]int64)}

	callbacks := db.Callback()
	register := []struct {
		op  string
		err error
	}{
		{"query", callbacks.Query().After("gorm:query").Register(callbackPrefix+"query", c.record("query"))},
		{"row", callbacks.Row().After("gorm:row").Register(callbackPrefix+"row", c.record("row"))},
		{"raw", callbacks.Raw().After("gorm:raw").Register(callbackPrefix+"raw", c.record("raw"))},
		{"create", callbacks.Create().After("gorm:create").Register(callbackPrefix+"create", c.record("create"))},
		{"update", callbacks.Update().After("gorm:update").Register(callbackPrefix+"update", c.record("update"))},
		{"delete", callbacks.Delete().After("gorm:delete").Register(callbackPrefix+"delete", c.record("delete"))},
	}
	for _, r := range register {
		if r.err != nil {
			return nil, r.err
		}
	}
	return c, nil
}

func (c *QueryCounter) record(op string) func(*gorm.DB) {
	cacheTable := models.CacheEntry{}.TableName()
	return func(tx *gorm.DB) {
		if tx.Statement != nil && tx.Statement.Table == cacheTable {
			return
		}
		c.total.Add(1)
		c.mu.Lock()
		c.byOp[op]++
		c.mu.Unlock()
		monitoring.RecordDatabaseQuery(op)
	}
}

// Count returns the number of statements observed so far.
func (c *QueryCounter) Count() int64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}

// ByOperation returns a copy of the per-operation counts.
func (c *QueryCounter) ByOperation() map[string]int64 {
	out := make(map[string]int64)
	if c == nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for op, n := range c.byOp {
		out[op] = n
	}
	return out
}
