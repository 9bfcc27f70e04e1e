package worker

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// ErrInvalidConfig is returned by Config.Validate and New.
var ErrInvalidConfig = errors.New("invalid worker config")

// CacheNames holds the two generation names of one worker version.
type CacheNames struct {
	// Static is the generation for shell and other cache-first assets
	Static string

	// API is the generation for network-first API responses
	API string
}

// DefaultCacheNames derives the generation names for an app version:
// "<app>-<version>" and "<app>-api-<version>".
func DefaultCacheNames(app, version string) CacheNames {
	return CacheNames{
		Static: app + "-" + version,
		API:    app + "-api-" + version,
	}
}

// Has reports whether name is one of the two current generations.
func (n CacheNames) Has(name string) bool {
	return name == n.Static || name == n.API
}

// Config is the immutable worker configuration.
type Config struct {
	// Scope is the absolute base URL shell paths and relative requests
	// resolve against (e.g. "https://posts.example.com/")
	Scope string

	// CacheNames are the generation names of this worker version
	CacheNames CacheNames

	// ShellAssets is the ordered install list of paths
	ShellAssets []string

	// ShellDocument is the cached root document served for offline
	// navigations; it must be one of ShellAssets
	ShellDocument string

	// APIURLs are the absolute upstream endpoints handled network-first
	APIURLs []string

	// StaticDestinations are the request destinations handled cache-first
	StaticDestinations []Destination

	// SyncTag is the background-sync tag that triggers a refresh
	SyncTag string

	// Concurrency
	InstallConcurrency int
	RefreshConcurrency int

	// RefreshAttempts is the per-URL attempt budget during refresh
	// (1 disables retries)
	RefreshAttempts int
}

// DefaultConfig returns the posts app configuration for a scope.
func DefaultConfig(scope string) Config {
	return Config{
		Scope:              scope,
		CacheNames:         DefaultCacheNames("pwa-posts", "v1.2"),
		ShellAssets:        []string{"/", "/index.html", "/style.css", "/main.js", "/manifest.json"},
		ShellDocument:      "/",
		APIURLs:            []string{"https://jsonplaceholder.typicode.com/posts"},
		StaticDestinations: []Destination{DestinationDocument, DestinationScript, DestinationStyle},
		SyncTag:            "background-sync",
		InstallConcurrency: 4,
		RefreshConcurrency: 4,
		RefreshAttempts:    1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	scope, err := url.Parse(c.Scope)
	if err != nil || !scope.IsAbs() || scope.Host == "" {
		return fmt.Errorf("%w: scope %q must be an absolute URL", ErrInvalidConfig, c.Scope)
	}
	if c.CacheNames.Static == "" || c.CacheNames.API == "" {
		return fmt.Errorf("%w: cache names are required", ErrInvalidConfig)
	}
	if c.CacheNames.Static == c.CacheNames.API {
		return fmt.Errorf("%w: static and api cache names must differ (got %q)", ErrInvalidConfig, c.CacheNames.Static)
	}
	if len(c.ShellAssets) == 0 {
		return fmt.Errorf("%w: at least one shell asset is required", ErrInvalidConfig)
	}
	for _, p := range c.ShellAssets {
		if _, err := url.Parse(p); err != nil || p == "" {
			return fmt.Errorf("%w: shell asset %q", ErrInvalidConfig, p)
		}
	}
	if c.ShellDocument != "" && !slices.Contains(c.ShellAssets, c.ShellDocument) {
		return fmt.Errorf("%w: shell document %q is not a shell asset", ErrInvalidConfig, c.ShellDocument)
	}
	for _, raw := range c.APIURLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%w: api url %q must be absolute", ErrInvalidConfig, raw)
		}
	}
	if c.SyncTag == "" {
		return fmt.Errorf("%w: sync tag is required", ErrInvalidConfig)
	}
	if c.InstallConcurrency < 1 || c.RefreshConcurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1", ErrInvalidConfig)
	}
	if c.RefreshAttempts < 1 {
		return fmt.Errorf("%w: refresh attempts must be >= 1 (got %d)", ErrInvalidConfig, c.RefreshAttempts)
	}
	return nil
}

// clone returns a copy that shares no slices with c.
func (c Config) clone() Config {
	out := c
	out.ShellAssets = slices.Clone(c.ShellAssets)
	out.APIURLs = slices.Clone(c.APIURLs)
	out.StaticDestinations = slices.Clone(c.StaticDestinations)
	return out
}
