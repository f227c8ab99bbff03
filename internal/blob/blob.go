// Package blob holds the downloaded recognition package while it travels
// from the fetcher to the engine boundary.
package blob

import (
	"errors"
	"sync"
)

// ErrTransferred is returned when a blob is used after its bytes were handed off.
var ErrTransferred = errors.New("blob: buffer already transferred")

// Blob owns a byte buffer until Transfer moves it somewhere else.
// After the move the Blob is empty and every accessor fails.
type Blob struct {
	mu          sync.Mutex
	data        []byte
	transferred bool
}

// New takes ownership of data. The caller must not keep using the slice.
func New(data []byte) *Blob {
	return &Blob{data: data}
}

// Len returns the buffer size, or 0 once transferred.
func (b *Blob) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Bytes gives read access to the buffer while the blob still owns it.
func (b *Blob) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transferred {
		return nil, ErrTransferred
	}
	return b.data, nil
}

// Transfer moves the buffer out of the blob. It succeeds exactly once.
func (b *Blob) Transfer() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transferred {
		return nil, ErrTransferred
	}
	data := b.data
	b.data = nil
	b.transferred = true
	return data, nil
}

// Transferred reports whether ownership already left this blob.
func (b *Blob) Transferred() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferred
}
