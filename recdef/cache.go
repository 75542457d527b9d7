package recdef

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pithecene-io/sliderule/catalog"
	"github.com/pithecene-io/sliderule/metrics"
)

// Fetcher retrieves the raw JSON definition of a record type.
// The request layer implements it by querying the "definition" endpoint.
type Fetcher interface {
	FetchDefinition(ctx context.Context, recordType string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, recordType string) ([]byte, error)

// FetchDefinition implements Fetcher.
func (f FetcherFunc) FetchDefinition(ctx context.Context, recordType string) ([]byte, error) {
	return f(ctx, recordType)
}

// Cache memoizes record definitions for the life of the process.
// Entries are never evicted: server type definitions are stable for a
// session.
//
// Concurrent first-time resolution of one type issues a single fetch;
// the other callers wait for its result. The fetch runs with the context
// of the caller that started it, and every waiter still returns as soon
// as its own context ends.
type Cache struct {
	fetcher   Fetcher
	collector *metrics.Collector

	mu      sync.RWMutex
	defs    map[string]*Definition
	checked map[string]struct{} // types whose nested references all resolve

	group singleflight.Group
}

// NewCache creates an empty cache. collector may be nil.
func NewCache(fetcher Fetcher, collector *metrics.Collector) *Cache {
	return &Cache{
		fetcher:   fetcher,
		collector: collector,
		defs:      make(map[string]*Definition),
		checked:   make(map[string]struct{}),
	}
}

// Resolve returns the definition of recordType, fetching it and every
// nested type it references on first use.
//
// Errors are *SchemaError.
func (c *Cache) Resolve(ctx context.Context, recordType string) (*Definition, error) {
	c.mu.RLock()
	def, ok := c.defs[recordType]
	_, done := c.checked[recordType]
	c.mu.RUnlock()
	if ok && done {
		return def, nil
	}

	def, err := c.load(ctx, recordType)
	if err != nil {
		return nil, err
	}
	if err := c.checkNested(ctx, def, map[string]bool{recordType: true}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.checked[recordType] = struct{}{}
	c.mu.Unlock()
	return def, nil
}

// Lookup returns a cached definition without any I/O.
func (c *Cache) Lookup(recordType string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[recordType]
	return def, ok
}

// Len returns the number of cached definitions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// FieldPrimitive returns the catalog entry for a primitive field of
// recordType. ok is false when the field is unknown, nested or a pointer.
func (c *Cache) FieldPrimitive(ctx context.Context, recordType, field string) (p catalog.Primitive, ok bool, err error) {
	def, err := c.Resolve(ctx, recordType)
	if err != nil {
		return catalog.Primitive{}, false, err
	}
	f, found := def.Field(field)
	if !found || f.Class != ClassPrimitive {
		return catalog.Primitive{}, false, nil
	}
	return f.Primitive, true, nil
}

// load fetches and parses one definition, without following nested
// references. Failed fetches are not cached, so a later call retries.
//
// A caller that joins a fetch started by someone else stops waiting when
// its own ctx ends. If the shared fetch died because its starter's ctx
// ended, a caller whose ctx is still live starts a fresh one.
func (c *Cache) load(ctx context.Context, recordType string) (*Definition, error) {
	for {
		if def, ok := c.Lookup(recordType); ok {
			return def, nil
		}

		var started bool
		ch := c.group.DoChan(recordType, func() (any, error) {
			started = true
			return c.fetch(ctx, recordType)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, schemaErr(recordType, "", "fetch abandoned", ctx.Err())
		}
		if res.Err == nil {
			return res.Val.(*Definition), nil
		}
		if !started && isContextErr(res.Err) && ctx.Err() == nil {
			continue
		}
		return nil, res.Err
	}
}

// fetch runs inside a single-flight call for recordType.
func (c *Cache) fetch(ctx context.Context, recordType string) (*Definition, error) {
	// A flight that finished between Lookup and DoChan has already stored it.
	if def, ok := c.Lookup(recordType); ok {
		return def, nil
	}

	c.collector.IncDefinitionFetch()
	raw, err := c.fetcher.FetchDefinition(ctx, recordType)
	if err != nil {
		c.collector.IncDefinitionFetchFailure()
		return nil, schemaErr(recordType, "", "fetch failed", err)
	}

	def, err := Parse(recordType, raw)
	if err != nil {
		c.collector.IncDefinitionFetchFailure()
		return nil, err
	}

	c.mu.Lock()
	c.defs[recordType] = def
	c.mu.Unlock()
	return def, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// checkNested resolves every nested type reachable from def. path holds
// the types on the current branch and catches reference cycles, which
// cannot describe a fixed-size layout.
func (c *Cache) checkNested(ctx context.Context, def *Definition, path map[string]bool) error {
	for _, nested := range def.NestedTypes() {
		if path[nested] {
			return schemaErr(def.Type, "", fmt.Sprintf("cyclic reference to %s", nested), nil)
		}

		child, err := c.load(ctx, nested)
		if err != nil {
			return schemaErr(def.Type, "", "unresolvable nested type "+nested, err)
		}
		if child.Size <= 0 {
			return schemaErr(def.Type, "", fmt.Sprintf("nested type %s has no instance size", nested), nil)
		}

		path[nested] = true
		err = c.checkNested(ctx, child, path)
		delete(path, nested)
		if err != nil {
			return err
		}
	}
	return nil
}
