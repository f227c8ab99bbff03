package blob

import (
	"bytes"
	"errors"
	"testing"
)

func TestTransferMovesOwnership(t *testing.T) {
	data := []byte{0x50, 0x4B, 0x03, 0x04}
	b := New(data)

	if b.Len() != 4 {
		t.Fatalf("Expected length 4, got %d", b.Len())
	}

	got, err := b.Transfer()
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %X, got %X", data, got)
	}

	if !b.Transferred() {
		t.Error("Expected blob to report transferred")
	}
	if b.Len() != 0 {
		t.Errorf("Expected length 0 after transfer, got %d", b.Len())
	}
	if _, err := b.Bytes(); !errors.Is(err, ErrTransferred) {
		t.Errorf("Expected ErrTransferred from Bytes, got %v", err)
	}
	if _, err := b.Transfer(); !errors.Is(err, ErrTransferred) {
		t.Errorf("Expected ErrTransferred from second Transfer, got %v", err)
	}
}

func TestBytesBeforeTransfer(t *testing.T) {
	b := New([]byte("pkg"))
	got, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if string(got) != "pkg" {
		t.Errorf("Expected 'pkg', got %q", got)
	}
	if b.Transferred() {
		t.Error("Reading must not transfer the blob")
	}
}
