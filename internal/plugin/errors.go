package plugin

import "errors"

// Lifecycle errors. They are returned wrapped with the locator, so compare
// with errors.Is.
var (
	// ErrNoPluginsFound is returned when a source declares no bundle types.
	ErrNoPluginsFound = errors.New("source declares no bundle types")
	// ErrNotLoaded is returned when unloading a locator that is not loaded.
	ErrNotLoaded = errors.New("plugin not loaded")
	// ErrAlreadyLoaded is returned when a locator or bundle name is taken.
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	// ErrSourceNotFound is returned by a Loader that does not know the locator.
	ErrSourceNotFound = errors.New("plugin source not found")
	// ErrInvalidSource is returned when a source or one of its types is malformed.
	ErrInvalidSource = errors.New("invalid plugin source")
)
