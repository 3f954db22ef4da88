// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wandb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultCacheTTL bounds how stale a cached run may be served.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a badger-backed read-through cache for fetched runs.
// Entries expire via badger TTL, so a dashboard refresh within the
// window costs no upstream requests. Values are JSON-encoded.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens a persistent cache under dir, creating the
// directory if needed. A non-positive ttl falls back to
// DefaultCacheTTL.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(false).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run cache: %w", err)
	}
	return newCache(db, ttl), nil
}

// OpenInMemoryCache opens a cache with no disk persistence.
// Useful for testing.
func OpenInMemoryCache(ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory run cache: %w", err)
	}
	return newCache(db, ttl), nil
}

func newCache(db *badger.DB, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{db: db, ttl: ttl}
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// InvalidateProject drops every cached entry for an entity/project
// pair: the run list, individual runs, and histories.
func (c *Cache) InvalidateProject(entity, project string) error {
	prefix := []byte(projectPrefix(entity, project))
	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// get unmarshals the cached value for key into out, reporting whether
// a live entry existed. Decode failures count as a miss.
func (c *Cache) get(key string, out any) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return err == nil
}

// put stores v under key with the cache TTL. Failures are ignored;
// the cache is best-effort and the caller already holds the value.
func (c *Cache) put(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// --- Cache Keys ---

func projectPrefix(entity, project string) string {
	return entity + "/" + project + "/"
}

func runKey(entity, project, runID string) string {
	return projectPrefix(entity, project) + "run/" + runID
}

func listKey(entity, project string, opts ListOptions) string {
	return projectPrefix(entity, project) + "list/" + strconv.Itoa(opts.Limit) + "/" + opts.Order
}

func historyKey(entity, project, runID string, metrics []string, samples int) string {
	return projectPrefix(entity, project) + "history/" + runID +
		"/" + strconv.Itoa(samples) + "/" + strings.Join(metrics, ",")
}
