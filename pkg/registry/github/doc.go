// Package github implements a registry endpoint for git hosts.
//
// Package names are "owner/repo". A lookup lists the remote's refs without
// cloning: semver tags become versions ("v1.2.0" is published as "1.2.0"),
// branches become tag-matched versions ("github:acme/widget@main"). Every
// version's source is a git locator pinned to the ref's commit.
//
// When a repository has no semver tags, the default branch is published as
// the "latest" tag so wildcard installs still resolve.
package github
