package transfer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// ErrOutOfOrder marks a chunk delivered with an index that is not the next
// one in sequence. It is a caller error, not an I/O failure.
var ErrOutOfOrder = errors.New("out-of-order chunk")

// Transfer is one in-flight chunked upload targeting a single destination
// file. The last accepted index starts at the maximum representable value so
// that the first chunk a caller may deliver is index 0 (wrap-around
// arithmetic).
type Transfer struct {
	file         *os.File
	fileName     string
	lastIndex    uint32
	lastActivity time.Time
	written      int64
}

// Open creates the destination file and returns a Transfer ready to accept
// chunk 0.
func Open(path, fileName string) (*Transfer, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open upload target: %w", err)
	}
	return &Transfer{
		file:         fh,
		fileName:     fileName,
		lastIndex:    math.MaxUint32,
		lastActivity: time.Now(),
	}, nil
}

// FileName returns the destination file name within the job directory.
func (t *Transfer) FileName() string {
	return t.fileName
}

// BytesWritten returns the total payload size accepted so far.
func (t *Transfer) BytesWritten() int64 {
	return t.written
}

// IdleSince returns the time of the last accepted chunk or, before any
// chunk arrived, the time the transfer was opened.
func (t *Transfer) IdleSince() time.Time {
	return t.lastActivity
}

// WriteChunk appends one chunk. Chunks must arrive in strictly increasing
// index order starting at 0; anything else is rejected and no bytes are
// written for the offending chunk.
func (t *Transfer) WriteChunk(index uint32, data []byte) error {
	if index != t.lastIndex+1 {
		return fmt.Errorf("%w: expected index %d, got %d", ErrOutOfOrder, t.lastIndex+1, index)
	}
	if _, err := t.file.Write(data); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	t.lastIndex = index
	t.written += int64(len(data))
	t.lastActivity = time.Now()
	return nil
}

// Finish flushes the destination file and closes the transfer.
func (t *Transfer) Finish() error {
	if err := t.file.Sync(); err != nil {
		_ = t.file.Close()
		return fmt.Errorf("sync upload target: %w", err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close upload target: %w", err)
	}
	return nil
}

// Cancel closes the transfer and deletes the partial file.
func (t *Transfer) Cancel() error {
	_ = t.file.Close()
	if err := os.Remove(t.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial upload: %w", err)
	}
	return nil
}
