// Package registry turns package targets into exact versions and source
// locators, and source locators into verified directories in the global
// content-addressed store.
//
// # Endpoints
//
// A registry is any [Endpoint] registered under a name with
// [Manager.Register]. The name is the registry prefix of package names:
// "npm:left@^1.0.0" is looked up by the endpoint registered as "npm".
// Endpoints may also implement [Resolver] (for lookups that omit sources)
// and [Authorizer] (credentials for their own URLs).
//
// # Resolution
//
// [Manager.Resolve] looks a package up at most once per operation (see
// [Manager.ResetOperation]) and picks a version:
//
//   - a tag target ("@latest", "@next", "@main") matches a published tag
//     or a version of the same name
//   - a wildcard takes the "latest" tag when it exists
//   - otherwise the highest stable version the range accepts wins;
//     prereleases need a prerelease range or preferUnstable
//
// Lookups are written to the lookup cache so an offline Manager can still
// resolve packages seen before.
//
// # Store
//
// [Manager.EnsureInstall] keys every store entry by the sha256 of the
// locator and the canonical JSON of the applied override:
//
//	<cacheDir>/packages/<hash>/
//
// Entries are built under packages/.tmp-<uuid> and renamed into place, so a
// failed or interrupted download never leaves a finalized entry. Existing
// entries are reused without touching the network. Each entry carries a
// .stackpm.json marker with its source and content digest.
package registry
