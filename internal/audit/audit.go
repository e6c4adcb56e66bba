// Package audit buffers completed proxy calls per user and flushes them to
// the database in batches.
package audit

import (
	"database/sql"
	"sync"
	"time"

	"analyzer-api/internal/database"
	"analyzer-api/internal/shared"

	"go.uber.org/zap"
)

type Cache struct {
	buckets map[uint64]*bucket
	mu      sync.Mutex
	log     *zap.SugaredLogger
	db      *sql.DB
}

type bucket struct {
	mu       sync.Mutex
	userID   uint64
	records  []*shared.ProxyRecord
	inflight uint64
	timer    *time.Timer
}

func NewCache(log *zap.SugaredLogger, db *sql.DB) *Cache {
	return &Cache{
		db:      db,
		log:     log,
		buckets: map[uint64]*bucket{},
	}
}

// Shutdown waits for in-flight requests to land in their buckets, then
// flushes everything.
func (c *Cache) Shutdown() {
	c.log.Info("Shutting down audit cache")
	for {
		c.mu.Lock()
		total := uint64(0)
		for _, b := range c.buckets {
			if b.timer != nil {
				b.timer.Stop()
			}
			total += b.inflight
		}
		c.mu.Unlock()
		if total == 0 {
			break
		}
		time.Sleep(1 * time.Second)
	}

	c.mu.Lock()
	userIDs := make([]uint64, 0, len(c.buckets))
	for userID := range c.buckets {
		userIDs = append(userIDs, userID)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, userID := range userIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Flush(userID)
		}()
	}
	wg.Wait()
}

// AddInFlight marks one proxy call as started. Add must follow for the same
// user once the call completes, or Shutdown will wait on it.
func (c *Cache) AddInFlight(userID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(userID)
	b.mu.Lock()
	b.inflight++
	b.mu.Unlock()
}

// Add records one completed proxy call and arms the flush timer for the
// user's bucket if it is not armed already.
func (c *Cache) Add(record *shared.ProxyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(record.UserID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight > 0 {
		b.inflight--
	}
	b.records = append(b.records, record)

	if b.timer == nil {
		b.timer = time.AfterFunc(shared.BucketFlushInterval, func() {
			c.Flush(b.userID)
		})
	}
}

func (c *Cache) getBucket(userID uint64) *bucket {
	b, ok := c.buckets[userID]
	if !ok {
		b = &bucket{userID: userID}
		c.buckets[userID] = b
	}
	return b
}

// Flush writes the user's buffered records, retrying a few times before
// giving up. Records still in flight stay behind in a fresh bucket.
func (c *Cache) Flush(userID uint64) {
	c.mu.Lock()
	b, ok := c.buckets[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.buckets, userID)
	if b.inflight != 0 {
		c.buckets[userID] = &bucket{
			userID:   userID,
			inflight: b.inflight,
		}
	}
	c.mu.Unlock()

	if len(b.records) == 0 {
		return
	}

	var err error
	for range shared.MaxFlushRetries {
		err = database.SaveAgentRequests(c.db, b.records, c.log)
		if err == nil {
			c.log.Infow("Flushed audit bucket", "user_id", userID, "requests", len(b.records))
			return
		}
		c.log.Errorw("Failed to insert audit records", "error", err)
		time.Sleep(shared.BucketRetryDelay)
	}
	c.log.Errorw("Dropping audit records after repeated flush failures", "error", err, "requests", len(b.records))
}
