// Package bufpool pools reusable byte slices for block I/O on top of
// sync.Pool, avoiding a fresh allocation per block read/write.
package bufpool

import "sync"

var pool = sync.Pool{
	New: func() any {
		return make([]byte, 0)
	},
}

// Get returns a []byte of length n, reused from the pool when possible.
func Get(n int) []byte {
	b := pool.Get().([]byte)
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// Put returns a buffer to the pool for reuse.
func Put(b []byte) {
	pool.Put(b[:0]) //nolint:staticcheck
}
