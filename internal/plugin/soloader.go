package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sync"
)

// SourceSymbol is the symbol a shared object exports: a func() []*plugin.Type
// or a variable of type plugin.Source.
const SourceSymbol = "Bundles"

// SharedObjectLoader loads sources from Go plugins built with
// -buildmode=plugin, found as <Dir>/<locator>.so. The Go runtime cannot
// close a plugin, so Unload only drops the loader's reference.
type SharedObjectLoader struct {
	Dir string

	mu   sync.Mutex
	open map[string]*goplugin.Plugin
}

// NewSharedObjectLoader returns a loader reading from dir.
func NewSharedObjectLoader(dir string) *SharedObjectLoader {
	return &SharedObjectLoader{Dir: dir, open: make(map[string]*goplugin.Plugin)}
}

// Load implements Loader.
func (l *SharedObjectLoader) Load(_ context.Context, locator string) (Source, error) {
	if l.Dir == "" || locator == "" || filepath.Base(locator) != locator {
		return nil, ErrSourceNotFound
	}
	path := filepath.Join(l.Dir, locator+".so")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}

	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sym, err := p.Lookup(SourceSymbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidSource, err)
	}

	var src Source
	switch v := sym.(type) {
	case func() []*Type:
		src = v
	case *Source:
		src = *v
	case *func() []*Type:
		src = *v
	default:
		return nil, fmt.Errorf("%s: %w: %s has type %T", path, ErrInvalidSource, SourceSymbol, sym)
	}

	l.mu.Lock()
	l.open[locator] = p
	l.mu.Unlock()
	return src, nil
}

// Unload implements Loader.
func (l *SharedObjectLoader) Unload(locator string) error {
	l.mu.Lock()
	delete(l.open, locator)
	l.mu.Unlock()
	return nil
}
