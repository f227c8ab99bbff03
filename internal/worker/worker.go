package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/depotscan/internal/utils" // Using the SafeCommand wrapper
)

// Operation codes understood by the engine process.
const (
	OpSetDebug  byte = 1
	OpCreate    byte = 2
	OpRecognize byte = 3
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxResponse guards against a corrupted length header allocating gigabytes.
const maxResponse = 64 * 1024 * 1024

// RemoteError is a failure reported by the engine itself, as opposed to a
// broken pipe or a crashed process.
type RemoteError struct {
	Op      byte
	Message string
}

func (e *RemoteError) Error() string {
	return "engine error: " + e.Message
}

// ErrWorkerUnusable is returned by every call after a transport failure left
// the response stream in an unknown position.
var ErrWorkerUnusable = errors.New("engine worker unusable")

// EngineWorker is one isolated engine process reached over pipes.
type EngineWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	mu     sync.Mutex
	broken error
}

// NewEngineWorker starts the engine command. Requests go to its stdin and
// responses come back on FD 3 so engine log output on stdout can't corrupt the stream.
func NewEngineWorker(id int, command []string) (*EngineWorker, error) {
	if len(command) == 0 {
		return nil, errors.New("engine command is empty")
	}
	eng := utils.NewSafeCommand(command[0], command[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	eng.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := eng.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := eng.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &EngineWorker{
		ID:       id,
		Cmd:      eng,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// writeRequest sends [Length][Op][Body...]. Body parts are written in order
// without being joined, so large packages are not copied.
func (w *EngineWorker) writeRequest(op byte, parts ...[]byte) error {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header, uint32(size))
	header[4] = op
	if _, err := w.Stdin.Write(header); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := w.Stdin.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Notify sends a request that the engine does not answer.
func (w *EngineWorker) Notify(op byte, parts ...[]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrWorkerUnusable, w.broken)
	}
	if err := w.writeRequest(op, parts...); err != nil {
		w.broken = err
		return err
	}
	return nil
}

// Broken reports whether a transport failure has poisoned the stream.
func (w *EngineWorker) Broken() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broken != nil
}

// Call sends a request and waits for the matching response.
// Protocol: [Length][Op][Body] -> [Length][Status][Payload]
//
// Any failure other than an engine-reported error marks the worker broken:
// a reply may still be in flight, so later reads could pick up the wrong frame.
func (w *EngineWorker) Call(ctx context.Context, op byte, parts ...[]byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnusable, w.broken)
	}
	if err := ctx.Err(); err != nil {
		return nil, err // nothing written yet, the stream is still aligned
	}

	resp, err := w.roundTrip(ctx, op, parts...)
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", ctx.Err(), err)
			}
			w.broken = err
		}
		return nil, err
	}
	return resp, nil
}

func (w *EngineWorker) roundTrip(ctx context.Context, op byte, parts ...[]byte) ([]byte, error) {
	if err := w.writeRequest(op, parts...); err != nil {
		return nil, err
	}

	stop := w.armDeadline(ctx)
	defer stop()

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an engine that crashed on startup
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 {
		return nil, errors.New("engine sent an empty response")
	}
	if respLen > maxResponse {
		return nil, fmt.Errorf("engine response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, err
	}

	switch respBody[0] {
	case statusOK:
		return respBody[1:], nil
	case statusError:
		return nil, &RemoteError{Op: op, Message: decodeErrorMessage(respBody[1:])}
	default:
		return nil, fmt.Errorf("engine sent unknown status %d", respBody[0])
	}
}

// decodeErrorMessage reads [MsgLen][Msg], falling back to the raw bytes.
func decodeErrorMessage(b []byte) string {
	if len(b) >= 4 {
		n := binary.BigEndian.Uint32(b)
		if int(n) <= len(b)-4 {
			return string(b[4 : 4+n])
		}
	}
	return string(b)
}

// armDeadline applies the tighter of the context deadline and ReadTimeout,
// when the data pipe supports deadlines (os.File pipes do). Cancelling ctx
// interrupts a blocked read. The returned func detaches the cancel hook.
func (w *EngineWorker) armDeadline(ctx context.Context) func() {
	d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error })
	if !ok {
		return func() {}
	}
	var deadline time.Time
	if w.ReadTimeout > 0 {
		deadline = time.Now().Add(w.ReadTimeout)
	}
	if cd, ok := ctx.Deadline(); ok && (deadline.IsZero() || cd.Before(deadline)) {
		deadline = cd
	}
	_ = d.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = d.SetReadDeadline(time.Now())
	})
	return func() { stop() }
}

// Close shuts down the pipes and waits for the process to exit.
func (w *EngineWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Wait()
	}
}
