// Package metadata implements the entity-description cache that sits between
// the schema provider and the graph synthesizer.
//
// The cache is populated lazily: EnsureFetched fetches only the names not
// already cached or in flight, and concurrent callers requesting overlapping
// sets share exactly one underlying describe per distinct name. A failed
// name never fails the batch for the others; it is reported per-name and
// left absent for the caller to retry explicitly.
//
// Entries are immutable and never evicted implicitly. Switching the schema
// API version invalidates the cache wholesale: every in-flight fetch is
// stamped with the generation at issue time, and results arriving under a
// newer generation are discarded instead of applied.
package metadata

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"schemascope/internal/domain"
	"schemascope/internal/provider"
	"schemascope/internal/repository"
)

// State is the cache's answer for a single entity name.
type State int

const (
	// StateAbsent means the entity has never been fetched (or its fetch failed).
	StateAbsent State = iota
	// StatePending means a fetch for the entity is currently in flight.
	StatePending
	// StateCached means the description is available.
	StateCached
)

// errStaleGeneration marks a fetch whose result arrived after the cache was
// invalidated; the result is discarded, never applied.
var errStaleGeneration = fmt.Errorf("fetch result discarded: cache invalidated mid-flight")

// defaultFetchConcurrency bounds how many describes a single EnsureFetched
// batch issues in parallel.
const defaultFetchConcurrency = 4

// Cache is the metadata cache. Safe for concurrent use.
type Cache struct {
	provider    provider.Provider
	store       repository.MetadataStore // optional; nil disables persistence
	concurrency int

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	apiVersion string
	entries    map[string]*domain.EntityDescription
	pending    map[string]uint64 // name -> generation of the in-flight fetch
}

// NewCache creates a cache over the given provider. The store may be nil.
func NewCache(p provider.Provider, store repository.MetadataStore) *Cache {
	return &Cache{
		provider:    p,
		store:       store,
		concurrency: defaultFetchConcurrency,
		apiVersion:  p.APIVersion(),
		entries:     make(map[string]*domain.EntityDescription),
		pending:     make(map[string]uint64),
	}
}

// Get returns the cached description for a name, if any, along with the
// name's cache state.
func (c *Cache) Get(name string) (*domain.EntityDescription, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc, ok := c.entries[name]; ok {
		return desc, StateCached
	}
	if _, ok := c.pending[name]; ok {
		return nil, StatePending
	}
	return nil, StateAbsent
}

// Descriptions returns a snapshot map of every cached description, suitable
// for handing to the synthesizer. Descriptions themselves are immutable so a
// shallow copy suffices.
func (c *Cache) Descriptions() map[string]*domain.EntityDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*domain.EntityDescription, len(c.entries))
	for name, desc := range c.entries {
		out[name] = desc
	}
	return out
}

// Len returns the number of cached descriptions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// APIVersion returns the schema version the cache is currently bound to.
func (c *Cache) APIVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiVersion
}

// EnsureFetched fetches the subset of names not already cached or in flight.
// It returns a map of per-name errors; a nil map means every requested name
// is now cached. Failed names are left absent and are never retried
// implicitly - the caller decides whether to call again.
func (c *Cache) EnsureFetched(ctx context.Context, names []string) map[string]error {
	c.mu.Lock()
	gen := c.generation
	seen := make(map[string]struct{}, len(names))
	var missing []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := c.entries[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  map[string]error
	)
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, name := range missing {
		name := name
		g.Go(func() error {
			if err := c.fetchOne(ctx, gen, name); err != nil {
				errMu.Lock()
				if errs == nil {
					errs = make(map[string]error)
				}
				errs[name] = err
				errMu.Unlock()
			}
			return nil
		})
	}
	// Workers report per-name; the group itself never fails.
	_ = g.Wait()
	return errs
}

// FetchBatch serves a multi-name describe in one provider round trip.
// Cached names are answered locally; only the remainder goes to the
// provider's batch describe. Unlike EnsureFetched it does not coalesce with
// in-flight per-name fetches, but results install under the same generation
// rule: a batch that straddles an invalidation is discarded, never applied.
func (c *Cache) FetchBatch(ctx context.Context, names []string) (map[string]*domain.EntityDescription, map[string]error) {
	c.mu.Lock()
	gen := c.generation
	descs := make(map[string]*domain.EntityDescription, len(names))
	seen := make(map[string]struct{}, len(names))
	var missing []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if desc, ok := c.entries[name]; ok {
			descs[name] = desc
			continue
		}
		missing = append(missing, name)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return descs, nil
	}

	fetched, perName, err := c.provider.DescribeBatch(ctx, missing)
	if err != nil {
		// Transport-level failure covers every missing name.
		errs := make(map[string]error, len(missing))
		for _, name := range missing {
			errs[name] = err
		}
		return descs, errs
	}

	var errs map[string]error
	for name, nameErr := range perName {
		if errs == nil {
			errs = make(map[string]error)
		}
		errs[name] = nameErr
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		for name := range fetched {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[name] = errStaleGeneration
		}
		return descs, errs
	}
	version := c.apiVersion
	for name, desc := range fetched {
		descs[name] = desc
		c.entries[name] = desc
	}
	c.mu.Unlock()

	if c.store != nil {
		for _, name := range missing {
			desc, ok := fetched[name]
			if !ok {
				continue
			}
			if err := c.store.SaveDescription(ctx, version, desc); err != nil {
				log.Printf("Failed to persist description %s: %v", name, err)
			}
		}
	}
	return descs, errs
}

// fetchOne describes a single entity, coalescing concurrent requests for the
// same name into one provider call. The singleflight key includes the
// generation so a caller arriving after an invalidation never joins a
// pre-invalidation flight.
func (c *Cache) fetchOne(ctx context.Context, gen uint64, name string) error {
	key := fmt.Sprintf("%d:%s", gen, name)
	_, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if desc, ok := c.entries[name]; ok {
			c.mu.Unlock()
			return desc, nil
		}
		c.pending[name] = gen
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			if c.pending[name] == gen {
				delete(c.pending, name)
			}
			c.mu.Unlock()
		}()

		desc, err := c.provider.Describe(ctx, name)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return nil, errStaleGeneration
		}
		c.entries[name] = desc
		version := c.apiVersion
		c.mu.Unlock()

		if c.store != nil {
			if err := c.store.SaveDescription(ctx, version, desc); err != nil {
				log.Printf("Failed to persist description %s: %v", name, err)
			}
		}
		return desc, nil
	})
	return err
}

// Invalidate clears every entry and binds the cache to a new schema API
// version. In-flight fetches issued before the call are discarded on
// arrival.
func (c *Cache) Invalidate(apiVersion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.apiVersion = apiVersion
	c.entries = make(map[string]*domain.EntityDescription)
	c.pending = make(map[string]uint64)
}

// WarmFromStore preloads descriptions persisted for the current API version.
// Returns how many entries were loaded. Already-cached names are kept.
func (c *Cache) WarmFromStore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	c.mu.Lock()
	version := c.apiVersion
	c.mu.Unlock()

	descs, err := c.store.LoadDescriptions(ctx, version)
	if err != nil {
		return 0, fmt.Errorf("warm cache from store: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := 0
	for _, desc := range descs {
		if _, ok := c.entries[desc.Name]; ok {
			continue
		}
		c.entries[desc.Name] = desc
		loaded++
	}
	return loaded, nil
}
