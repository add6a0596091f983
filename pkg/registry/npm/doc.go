// Package npm implements a registry endpoint for npm-compatible registries.
//
// The endpoint reads package documents ("packuments") from
// <url>/<name> and publishes each version's dist.tarball as its source,
// with dist.integrity (or the legacy dist.shasum) as the integrity
// fragment. A version document may carry a "stackpm" object; it is returned
// as the registry's configuration override for that version.
//
//	ep := npm.New(client, npm.Options{URL: npm.DefaultURL, Token: token})
//	manager.Register("npm", ep)
package npm
