// Package lifecycle owns the embedder, vector index, passage store and generator
// and decides when they get loaded.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/generator"
	"ragqa/internal/passages"
	"ragqa/internal/vectorstore"
)

// Resource identifies one managed component.
type Resource int

const (
	ResourceEmbedder Resource = iota
	ResourceIndex
	ResourcePassages
	ResourceGenerator
)

func (r Resource) String() string {
	switch r {
	case ResourceEmbedder:
		return "embedder"
	case ResourceIndex:
		return "index"
	case ResourcePassages:
		return "passages"
	case ResourceGenerator:
		return "generator"
	default:
		return fmt.Sprintf("resource(%d)", int(r))
	}
}

var (
	// Eager startup loads the embedding model first.
	eagerOrder = []Resource{ResourceEmbedder, ResourceIndex, ResourcePassages, ResourceGenerator}
	// Lazy loading starts with the cheap file-backed resources.
	lazyOrder = []Resource{ResourceIndex, ResourcePassages, ResourceEmbedder, ResourceGenerator}
)

// Loaders build each resource. They are called at most once per successful load.
type Loaders struct {
	Embedder  func(ctx context.Context) (embedding.Embedder, error)
	Index     func(ctx context.Context) (vectorstore.Index, error)
	Passages  func(ctx context.Context) (*passages.Store, error)
	Generator func(ctx context.Context) (generator.Generator, error)
}

// Manager holds the resource handles behind synchronized accessors.
// A resource moves from uninitialized to ready exactly once; concurrent
// EnsureReady callers share a single in-flight load.
type Manager struct {
	policy  string
	loaders Loaders
	log     *zap.Logger

	mu        sync.RWMutex
	embedder  embedding.Embedder
	index     vectorstore.Index
	passages  *passages.Store
	generator generator.Generator

	ready    atomic.Bool
	attempts atomic.Int64
	group    singleflight.Group
}

func NewManager(policy string, loaders Loaders, log *zap.Logger) (*Manager, error) {
	if policy != config.PolicyEager && policy != config.PolicyLazy {
		return nil, fmt.Errorf("unknown lifecycle policy: %q", policy)
	}
	if loaders.Embedder == nil || loaders.Index == nil || loaders.Passages == nil || loaders.Generator == nil {
		return nil, errors.New("all four resource loaders are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{policy: policy, loaders: loaders, log: log}, nil
}

// Policy returns the configured initialization policy.
func (m *Manager) Policy() string { return m.policy }

// Start loads everything up front under the eager policy and is a no-op under lazy.
// An error means the process should not serve requests.
func (m *Manager) Start(ctx context.Context) error {
	if m.policy != config.PolicyEager {
		m.log.Info("lazy loading enabled; resources load on first request")
		return nil
	}
	_, err := m.EnsureReady(ctx)
	return err
}

// EnsureReady loads whatever is not loaded yet. It is cheap once everything is ready.
// If ctx ends while a load is running, the caller stops waiting but the load continues
// for the others.
func (m *Manager) EnsureReady(ctx context.Context) (bool, error) {
	if m.ready.Load() {
		return true, nil
	}
	order := lazyOrder
	if m.policy == config.PolicyEager {
		order = eagerOrder
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("load", func() (any, error) {
		if m.ready.Load() {
			return nil, nil
		}
		return nil, m.load(loadCtx, order)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return true, nil
	}
}

func (m *Manager) load(ctx context.Context, order []Resource) error {
	attempt := m.attempts.Add(1)
	start := time.Now()
	m.log.Info("loading resources", zap.String("policy", m.policy), zap.Int64("attempt", attempt))

	for _, r := range order {
		if m.has(r) {
			continue
		}
		began := time.Now()
		if err := m.loadOne(ctx, r); err != nil {
			m.log.Error("error loading resource", zap.Stringer("resource", r), zap.Error(err))
			return fmt.Errorf("%w: load %s: %w", domain.ErrNotReady, r, err)
		}
		m.log.Info("resource ready", zap.Stringer("resource", r), zap.Duration("took", time.Since(began)))
	}

	st := m.Status()
	if st.IndexVectors != st.PassageCount {
		m.log.Warn("index and passage store sizes differ; out-of-range ids will be dropped",
			zap.Int("index_vectors", st.IndexVectors), zap.Int("text_entries", st.PassageCount))
	}
	m.ready.Store(true)
	m.log.Info("all resources loaded", zap.Duration("took", time.Since(start)),
		zap.Int("index_vectors", st.IndexVectors), zap.Int("text_entries", st.PassageCount))
	return nil
}

func (m *Manager) loadOne(ctx context.Context, r Resource) error {
	switch r {
	case ResourceEmbedder:
		v, err := m.loaders.Embedder(ctx)
		if err == nil && v == nil {
			err = errors.New("loader returned nil")
		}
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.embedder = v
		m.mu.Unlock()
	case ResourceIndex:
		v, err := m.loaders.Index(ctx)
		if err == nil && v == nil {
			err = errors.New("loader returned nil")
		}
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.index = v
		m.mu.Unlock()
	case ResourcePassages:
		v, err := m.loaders.Passages(ctx)
		if err == nil && v == nil {
			err = errors.New("loader returned nil")
		}
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.passages = v
		m.mu.Unlock()
	case ResourceGenerator:
		v, err := m.loaders.Generator(ctx)
		if err == nil && v == nil {
			err = errors.New("loader returned nil")
		}
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.generator = v
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) has(r Resource) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch r {
	case ResourceEmbedder:
		return m.embedder != nil
	case ResourceIndex:
		return m.index != nil
	case ResourcePassages:
		return m.passages != nil
	case ResourceGenerator:
		return m.generator != nil
	}
	return false
}

// Ready reports whether every resource is loaded.
func (m *Manager) Ready() bool { return m.ready.Load() }

// LoadCount is the number of load sequences that have run.
func (m *Manager) LoadCount() int64 { return m.attempts.Load() }

// Status snapshots readiness and sizes.
func (m *Manager) Status() domain.ServiceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := domain.ServiceState{
		Policy:         m.policy,
		EmbedderReady:  m.embedder != nil,
		IndexReady:     m.index != nil,
		PassagesReady:  m.passages != nil,
		GeneratorReady: m.generator != nil,
		LoadAttempts:   m.attempts.Load(),
	}
	if m.index != nil {
		st.IndexVectors = m.index.Count()
	}
	if m.passages != nil {
		st.PassageCount = m.passages.Len()
	}
	return st
}

func (m *Manager) Embedder() embedding.Embedder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embedder
}

func (m *Manager) Index() vectorstore.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

func (m *Manager) Passages() *passages.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.passages
}

func (m *Manager) Generator() generator.Generator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generator
}
