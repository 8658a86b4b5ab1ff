// Package clog accumulates structured log attributes on a context so that a
// single request-scoped log line can carry everything recorded while handling
// it. It plugs into log/slog via AttributesHandler.
package clog

import (
	"context"
	"sync"
)

type ctxAttrs struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxAttrsKey struct{}

// ContextWithAttrs returns a context carrying an attribute accumulator.
func ContextWithAttrs(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxAttrsKey{}, &ctxAttrs{
		attributes: make(map[string]any),
	})
}

// AddAttr records a single attribute on the context accumulator. A context
// without an accumulator is a no-op.
func AddAttr(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attributes[key] = value
}

// AddAttrs records multiple attributes at once.
func AddAttrs(ctx context.Context, attributes map[string]any) {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range attributes {
		a.attributes[k] = v
	}
}

// Attrs returns a copy of the accumulated attributes, or nil.
func Attrs(ctx context.Context) map[string]any {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	copied := make(map[string]any, len(a.attributes))
	for k, v := range a.attributes {
		copied[k] = v
	}
	return copied
}

const (
	// ErrorAttributeKey holds the request error, if any.
	ErrorAttributeKey = "error.message"
	// StackAttributeKey holds a captured stack trace.
	StackAttributeKey = "error.stack"
)

// AddError records err on the context accumulator.
func AddError(ctx context.Context, err error) {
	AddAttr(ctx, ErrorAttributeKey, err)
}

// AddStack records a stack trace on the context accumulator.
func AddStack(ctx context.Context, stack string) {
	AddAttr(ctx, StackAttributeKey, stack)
}
