package testutil

import (
	"testing"

	"nifty-go/internal/content"
	"nifty-go/internal/database"
	"nifty-go/internal/identity"
	"nifty-go/internal/registry"
)

// TestRegistry bundles a Service with the collaborators behind it so tests
// can inspect state directly.
type TestRegistry struct {
	Service *registry.Service
	DB      *database.SQLiteDatabase
	Content *content.MemoryStore
	Clock   *StubClock
	Logger  *RecordingLogger
}

// Option customizes NewTestRegistry.
type Option func(*testOptions)

type testOptions struct {
	limits    registry.Limits
	blockSize uint64
	store     func(*content.MemoryStore) registry.ContentStore
	identity  registry.IdentityProvider
	metrics   registry.Metrics
}

// WithLimits overrides registry.DefaultLimits.
func WithLimits(l registry.Limits) Option {
	return func(o *testOptions) { o.limits = l }
}

// WithTokenBlockSize overrides the allocator block size (default 1).
func WithTokenBlockSize(n uint64) Option {
	return func(o *testOptions) { o.blockSize = n }
}

// WithContentStore wraps the memory store, e.g. with a FlakyContentStore.
func WithContentStore(wrap func(*content.MemoryStore) registry.ContentStore) Option {
	return func(o *testOptions) { o.store = wrap }
}

// WithIdentity replaces the static identity provider.
func WithIdentity(p registry.IdentityProvider) Option {
	return func(o *testOptions) { o.identity = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m registry.Metrics) Option {
	return func(o *testOptions) { o.metrics = m }
}

// NewTestRegistry wires a Service over an in-memory database, a memory
// content store, the static identity provider and a fixed clock. With the
// static provider the credential is the account name.
func NewTestRegistry(t *testing.T, opts ...Option) *TestRegistry {
	t.Helper()

	o := testOptions{
		limits:    registry.DefaultLimits(),
		blockSize: 1,
		identity:  identity.NewStaticProvider(),
		metrics:   registry.NopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	db := NewTestDatabase(t)
	mem := NewTestContentStore()
	var store registry.ContentStore = mem
	if o.store != nil {
		store = o.store(mem)
	}
	clock := FixedClock()
	logger := NewRecordingLogger()

	svc := registry.NewService(db, store, o.identity, registry.NewBlockAllocator(db, o.blockSize), o.limits, logger, clock, o.metrics)

	return &TestRegistry{
		Service: svc,
		DB:      db,
		Content: mem,
		Clock:   clock,
		Logger:  logger,
	}
}
