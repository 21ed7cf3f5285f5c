package store

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client, index string) *Store {
	return &Store{client: c, index: index}
}
