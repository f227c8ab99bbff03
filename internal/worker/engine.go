package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/depotscan/internal/blob"
	"github.com/andresmejia3/depotscan/internal/catalog"
	"github.com/andresmejia3/depotscan/internal/types"
	"go.uber.org/zap"
)

// Config describes how to launch the engine process.
type Config struct {
	Command     []string
	ReadTimeout time.Duration
}

// Engine owns the engine process and starts it on first use.
type Engine struct {
	cfg Config
	log *zap.Logger

	// start is swapped out in tests to inject in-memory pipes
	start func() (*EngineWorker, error)

	mu     sync.Mutex // held across start and createRecognizer
	w      *EngineWorker
	nextID int

	// current mirrors w for SetDebug, which must not wait on mu
	current atomic.Pointer[EngineWorker]
	debugMu sync.Mutex
	debug   bool
	sends   sync.WaitGroup
}

func NewEngine(cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{cfg: cfg, log: log}
	e.start = func() (*EngineWorker, error) {
		w, err := NewEngineWorker(e.nextID, cfg.Command)
		if err != nil {
			return nil, err
		}
		w.ReadTimeout = cfg.ReadTimeout
		return w, nil
	}
	return e
}

// Worker returns the running process, if any. Used for crash log reporting.
func (e *Engine) Worker() *EngineWorker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w
}

func (e *Engine) ensureStarted() (*EngineWorker, error) {
	if e.w != nil && !e.w.Broken() {
		return e.w, nil
	}
	if e.w != nil {
		e.log.Warn("Replacing broken engine process", zap.Int("worker", e.w.ID))
		e.dropWorker()
	}
	w, err := e.start()
	if err != nil {
		return nil, err
	}
	e.nextID++
	e.w = w
	e.current.Store(w)
	e.log.Debug("Engine process started", zap.Int("worker", w.ID))

	// current is published before the flag is read; a racing SetDebug sends it itself
	if e.debugFlag() {
		if err := w.Notify(OpSetDebug, []byte{1}); err != nil {
			e.log.Warn("Failed to forward debug flag", zap.Error(err))
		}
	}
	return w, nil
}

func (e *Engine) debugFlag() bool {
	e.debugMu.Lock()
	defer e.debugMu.Unlock()
	return e.debug
}

// SetDebug toggles engine diagnostics. It never waits for the engine; a flag
// set before the process exists is applied when it starts.
func (e *Engine) SetDebug(flag bool) {
	e.debugMu.Lock()
	e.debug = flag
	e.debugMu.Unlock()

	w := e.current.Load()
	if w == nil {
		return
	}
	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		// Send whatever is current once the pipe is free, so the last call wins
		b := byte(0)
		if e.debugFlag() {
			b = 1
		}
		if err := w.Notify(OpSetDebug, []byte{b}); err != nil {
			e.log.Warn("Failed to forward debug flag", zap.Error(err))
		}
	}()
}

// CreateRecognizer instantiates a recognizer inside the engine process.
// The package bytes are moved out of pkg and handed to the process.
func (e *Engine) CreateRecognizer(ctx context.Context, order catalog.Order, pkg *blob.Blob) (types.Recognizer, error) {
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item order: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	w, err := e.ensureStarted()
	if err != nil {
		return nil, err
	}

	data, err := pkg.Transfer()
	if err != nil {
		return nil, err
	}

	orderLen := make([]byte, 4)
	binary.BigEndian.PutUint32(orderLen, uint32(len(orderJSON)))

	resp, err := w.Call(ctx, OpCreate, orderLen, orderJSON, data)
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			// Transport failure: the process is unusable, restart it next time
			e.dropWorker()
		}
		return nil, err
	}
	if len(resp) != 4 {
		return nil, fmt.Errorf("engine returned a %d byte recognizer handle, expected 4", len(resp))
	}

	handle := binary.BigEndian.Uint32(resp)
	e.log.Debug("Recognizer created", zap.Uint32("handle", handle), zap.Int("items", order.Len()))
	return &Recognizer{handle: handle, w: w}, nil
}

func (e *Engine) dropWorker() {
	if e.w == nil {
		return
	}
	e.current.CompareAndSwap(e.w, nil)
	e.w.Close()
	e.w = nil
}

// Close stops the engine process.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.dropWorker()
	e.mu.Unlock()
	e.sends.Wait()
	return nil
}

// Recognizer is a handle to a recognizer living in the engine process.
type Recognizer struct {
	handle uint32
	w      *EngineWorker
}

// Recognize runs the engine on one depot screenshot.
func (r *Recognizer) Recognize(ctx context.Context, image []byte) ([]types.Item, error) {
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	h := make([]byte, 4)
	binary.BigEndian.PutUint32(h, r.handle)

	resp, err := r.w.Call(ctx, OpRecognize, h, image)
	if err != nil {
		return nil, err
	}

	var items []types.Item
	if err := json.Unmarshal(resp, &items); err != nil {
		// Check if it's an engine error object (e.g. {"error": "..."})
		var errorResult types.ErrorResult
		if json.Unmarshal(resp, &errorResult) == nil && errorResult.Error != "" {
			return nil, &RemoteError{Op: OpRecognize, Message: errorResult.Error}
		}
		return nil, fmt.Errorf("engine returned malformed result: %w", err)
	}
	return items, nil
}
