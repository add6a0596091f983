// Package fetch is the authenticated HTTP transport shared by registry
// lookups and tarball downloads.
//
// [Client.Do] adds credentials, retries transient failures on idempotent
// requests and re-authorizes once when a server answers 401 or 403. The
// client honors HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
//
// # Credentials
//
// Credentials for a URL are resolved in order:
//
//  1. userinfo embedded in the URL
//  2. the auth hook registered for the longest matching URL prefix
//     (registries register one per endpoint)
//  3. the local [Store] under the config directory
//  4. the ambient credential [Helper], by default "git credential fill"
//
// Results are cached per origin and concurrent lookups for one origin are
// coalesced. A 401 or 403 drops the cached entry and resolves again with
// the rejecting response headers passed to the auth hook.
package fetch
