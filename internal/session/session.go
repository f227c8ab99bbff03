// Package session owns the lifecycle of the depot recognizer: stale cache
// cleanup, the one-time package download, engine instantiation, and reuse of
// the resulting handle.
//
// A Manager moves Uninitialized -> Creating -> Ready. A failed creation goes
// back to Uninitialized so the next GetRecognizer retries from scratch. Ready
// is terminal.
//
// Creation cannot be cancelled. Once a download has started it runs to
// completion or failure even if every caller's context is done.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/depotscan/internal/blob"
	"github.com/andresmejia3/depotscan/internal/cache"
	"github.com/andresmejia3/depotscan/internal/catalog"
	"github.com/andresmejia3/depotscan/internal/metrics"
	"github.com/andresmejia3/depotscan/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type State int32

const (
	Uninitialized State = iota
	Creating
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Fetcher downloads the recognition package.
type Fetcher interface {
	Fetch(ctx context.Context) (*blob.Blob, error)
}

// Engine is the worker boundary. CreateRecognizer takes ownership of pkg.
type Engine interface {
	SetDebug(flag bool)
	CreateRecognizer(ctx context.Context, order catalog.Order, pkg *blob.Blob) (types.Recognizer, error)
	Close() error
}

// CachePurger clears one namespace of local persisted state.
type CachePurger interface {
	Clear(ctx context.Context, namespace string) error
}

type Options struct {
	Fetcher Fetcher
	Engine  Engine
	Order   catalog.Order
	// Cache may be nil when there is no local state to clean.
	Cache CachePurger
	// Namespace defaults to cache.PackageNamespace.
	Namespace string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

const flightKey = "recognizer"

type Manager struct {
	fetcher   Fetcher
	engine    Engine
	order     catalog.Order
	cache     CachePurger
	namespace string
	log       *zap.Logger
	metrics   *metrics.Metrics

	purgeOnce sync.Once
	flight    singleflight.Group
	state     atomic.Int32
	handle    atomic.Pointer[readyHandle]
}

type readyHandle struct {
	rec types.Recognizer
}

// New builds a manager and purges the stale package namespace before returning.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("session: fetcher is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("session: engine is required")
	}
	if opts.Order.Len() == 0 {
		return nil, errors.New("session: item order is empty")
	}
	if opts.Namespace == "" {
		opts.Namespace = cache.PackageNamespace
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		fetcher:   opts.Fetcher,
		engine:    opts.Engine,
		order:     opts.Order,
		cache:     opts.Cache,
		namespace: opts.Namespace,
		log:       log.With(zap.String("session", uuid.NewString())),
		metrics:   opts.Metrics,
	}
	m.PurgeStaleCache(ctx)
	return m, nil
}

// PurgeStaleCache clears leftovers of earlier package downloads. It runs at
// most once per manager and never fails: errors are logged and counted.
func (m *Manager) PurgeStaleCache(ctx context.Context) {
	m.purgeOnce.Do(func() {
		if m.cache == nil {
			return
		}
		err := m.cache.Clear(ctx, m.namespace)
		m.metrics.Purge(err)
		if err != nil {
			m.log.Warn("Failed to purge stale package cache",
				zap.Error(&CacheClearError{Namespace: m.namespace, Err: err}))
			return
		}
		m.log.Debug("Purged stale package cache", zap.String("namespace", m.namespace))
	})
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// GetRecognizer returns the shared recognizer, creating it on first use.
// Concurrent callers during creation share one download and one engine
// instantiation, and all get the same handle or the same error.
func (m *Manager) GetRecognizer(ctx context.Context) (types.Recognizer, error) {
	if h := m.handle.Load(); h != nil {
		m.metrics.Reuse()
		return h.rec, nil
	}

	// Deletion must finish before the namespace can be repopulated
	m.PurgeStaleCache(ctx)

	v, err, shared := m.flight.Do(flightKey, func() (interface{}, error) {
		// A caller can miss the fast path just as the previous flight publishes
		if h := m.handle.Load(); h != nil {
			return h.rec, nil
		}
		return m.create(context.WithoutCancel(ctx))
	})
	if shared {
		m.metrics.SharedWait()
	}
	if err != nil {
		return nil, err
	}
	return v.(types.Recognizer), nil
}

func (m *Manager) create(ctx context.Context) (rec types.Recognizer, err error) {
	m.state.Store(int32(Creating))
	defer func() {
		if m.handle.Load() == nil {
			m.state.Store(int32(Uninitialized))
		}
	}()

	start := time.Now()
	pkg, err := m.fetcher.Fetch(ctx)
	m.metrics.Fetch(err)
	if err != nil {
		m.log.Warn("Recognition package download failed", zap.Error(err))
		return nil, &FetchError{Err: err}
	}
	size := pkg.Len()
	m.log.Debug("Recognition package downloaded",
		zap.Int("bytes", size), zap.Duration("took", time.Since(start)))

	// pkg belongs to the engine from here on
	rec, err = m.engine.CreateRecognizer(ctx, m.order, pkg)
	if err == nil && rec == nil {
		err = errors.New("engine returned no recognizer")
	}
	m.metrics.Create(err)
	if err != nil {
		m.log.Warn("Recognizer creation failed", zap.Error(err))
		return nil, &EngineInitError{Err: err}
	}

	m.handle.Store(&readyHandle{rec: rec})
	m.state.Store(int32(Ready))
	m.log.Info("Recognizer ready",
		zap.Int("package_bytes", size),
		zap.Int("items", m.order.Len()),
		zap.Duration("took", time.Since(start)))
	return rec, nil
}

// SetDebug forwards the diagnostic flag to the engine without waiting.
func (m *Manager) SetDebug(flag bool) {
	m.engine.SetDebug(flag)
}

// Close stops the engine. The manager must not be used afterwards.
func (m *Manager) Close() error {
	return m.engine.Close()
}
