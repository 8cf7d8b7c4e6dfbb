package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Loader resolves a locator to a Source. Unload tells the loader the manager
// no longer holds anything from the source.
type Loader interface {
	Load(ctx context.Context, locator string) (Source, error)
	Unload(locator string) error
}

// Catalog serves sources compiled into the binary.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{sources: make(map[string]Source)}
}

// Register makes src loadable as locator.
func (c *Catalog) Register(locator string, src Source) error {
	if src == nil {
		return fmt.Errorf("catalog %q: %w", locator, ErrInvalidSource)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[locator]; ok {
		return fmt.Errorf("catalog %q: already registered", locator)
	}
	c.sources[locator] = src
	return nil
}

// Load implements Loader.
func (c *Catalog) Load(_ context.Context, locator string) (Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.sources[locator]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return src, nil
}

// Unload implements Loader. Compiled-in sources stay available.
func (c *Catalog) Unload(string) error { return nil }

// Locators returns the registered locators, sorted.
func (c *Catalog) Locators() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sources))
	for l := range c.sources {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// MultiLoader asks each loader in turn. A loader answering ErrSourceNotFound
// passes the locator on to the next one.
type MultiLoader struct {
	loaders []Loader

	mu    sync.Mutex
	owner map[string]Loader
}

// NewMultiLoader chains loaders in order.
func NewMultiLoader(loaders ...Loader) *MultiLoader {
	return &MultiLoader{loaders: loaders, owner: make(map[string]Loader)}
}

// Load implements Loader.
func (ml *MultiLoader) Load(ctx context.Context, locator string) (Source, error) {
	for _, l := range ml.loaders {
		src, err := l.Load(ctx, locator)
		if errors.Is(err, ErrSourceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ml.mu.Lock()
		ml.owner[locator] = l
		ml.mu.Unlock()
		return src, nil
	}
	return nil, ErrSourceNotFound
}

// Unload implements Loader.
func (ml *MultiLoader) Unload(locator string) error {
	ml.mu.Lock()
	l, ok := ml.owner[locator]
	delete(ml.owner, locator)
	ml.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Unload(locator)
}
