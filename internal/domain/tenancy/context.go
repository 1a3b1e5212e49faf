package tenancy

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey struct{}

// Context holds the tenant bound to a single unit of work.
// It is attached to a context.Context by Begin and must be released
// by the same unit of work that opened it.
type Context struct {
	mu     sync.Mutex
	id     string
	bound  bool
	logger *zap.Logger
}

// NewContext creates an unbound tenant context
func NewContext(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{logger: logger}
}

// Bind binds id to the unit of work. Rebinding overwrites the previous value.
func (c *Context) Bind(id string) error {
	if IsBlank(id) {
		return ErrBlankIdentifier
	}

	c.mu.Lock()
	previous, wasBound := c.id, c.bound
	c.id, c.bound = id, true
	c.mu.Unlock()

	if wasBound && previous != id {
		c.logger.Info("Tenant rebound within unit of work",
			zap.String("previous_tenant", previous),
			zap.String("tenant", id),
		)
	}
	return nil
}

// GetOrNull returns the bound identifier and true, or "" and false when nothing is bound.
// It never substitutes a default.
func (c *Context) GetOrNull() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.bound
}

// Clear removes the binding. Safe to call repeatedly.
func (c *Context) Clear() {
	c.mu.Lock()
	c.id, c.bound = "", false
	c.mu.Unlock()
}

// WithContext attaches tc to ctx
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the unit of work's tenant context, or nil
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	tc, _ := ctx.Value(contextKey{}).(*Context)
	return tc
}

// Begin opens a new unit of work on ctx. The returned release func clears the
// binding and must be deferred by the caller; it is idempotent.
func Begin(ctx context.Context, logger *zap.Logger) (context.Context, func()) {
	tc := NewContext(logger)
	var once sync.Once
	return WithContext(ctx, tc), func() {
		once.Do(tc.Clear)
	}
}

// Bind binds id to the unit of work attached to ctx
func Bind(ctx context.Context, id string) error {
	tc := FromContext(ctx)
	if tc == nil {
		return ErrNoUnitOfWork
	}
	return tc.Bind(id)
}

// Current returns the identifier bound to ctx's unit of work, if any
func Current(ctx context.Context) (string, bool) {
	tc := FromContext(ctx)
	if tc == nil {
		return "", false
	}
	return tc.GetOrNull()
}

// Clear clears ctx's unit of work binding, if there is one
func Clear(ctx context.Context) {
	if tc := FromContext(ctx); tc != nil {
		tc.Clear()
	}
}

// Run executes fn in a fresh unit of work bound to id. The binding is cleared
// when fn returns, errors or panics.
func Run(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	ctx, release := Begin(ctx, nil)
	defer release()

	if err := Bind(ctx, id); err != nil {
		return err
	}
	return fn(ctx)
}
