// Package pkg provides the core libraries of the stackpm package manager.
//
// # Overview
//
// stackpm installs packages declared in a package.json manifest. Ranges are
// resolved against npm-compatible registries and git hosts, every resolved
// package is extracted once into a content-addressed global store, and the
// project links to the store from stackpm_packages/. The resolve graph is
// persisted in stackpm.lock.
//
// # Architecture
//
// The data flow of an install:
//
//	package.json ranges
//	         ↓
//	    [install] (recursive install with per-operation memoization)
//	         ↓
//	    [registry] (lookup → exact version, source locator, override)
//	         ↓
//	    [source] (download git / tarball / link / file into the store)
//	         ↓
//	    [tree] (stackpm.lock) + stackpm_packages/<registry>/<name>@<version>
//
// # Main Packages
//
// ## Engine
//
// [install] - Top-level operations: install, update, link, checkout,
// uninstall and clean. One operation runs at a time per project.
//
// [registry] - Registry endpoints (npm, github), lookup caching, overrides
// and the global store with its integrity markers.
//
// [tree] - The resolve tree persisted as the lockfile.
//
// [manifest] - The package.json document: primary ranges, overrides and the
// project lock.
//
// [pkgname] - Package names, exact versions, targets and source references.
//
// ## Infrastructure
//
// [source] - Source locators and the protocols that download them.
//
// [fetch] - Authenticated, retrying HTTP client and credential store.
//
// [cache] - Lookup caches (file, Redis, null).
//
// [config] - User configuration (TOML).
//
// [observability] - Hooks for resolve, fetch, cache and HTTP events.
//
// [render/nodelink] - Graphviz diagrams of the resolve tree.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                        # All tests
//	STACKPM_REDIS_URL=redis://localhost:6379/15 go test ./pkg/cache/...
//
// [install]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/install
// [registry]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/registry
// [tree]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/tree
// [manifest]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/manifest
// [pkgname]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/pkgname
// [source]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/source
// [fetch]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/fetch
// [cache]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/config
// [observability]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/observability
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/render/nodelink
package pkg
