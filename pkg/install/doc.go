// Package install orchestrates project installs.
//
// An [Installer] works on one [Project]: the manifest (package.json), the
// resolve tree (stackpm.lock) and the local package directory
// (stackpm_packages/). Top-level operations are [Installer.Install],
// [Installer.Update], [Installer.Link], [Installer.Checkout],
// [Installer.Uninstall] and [Installer.Clean]. Only one runs at a time; a
// second call while one is in progress fails with a [BusyError].
//
// # Recursion
//
// Each requested install is resolved through the registry manager,
// recorded into the tree and fetched into the global store. The package's
// own dependencies are then spawned into the operation's task group. Two
// memo maps, keyed by (parent, name) and by exact|source, make sure every
// binding and every store entry is handled once per operation, so diamond
// and circular graphs need no special casing.
//
// The tree and manifest are only written after every task has settled and
// unreachable packages have been pruned.
//
// # Local layout
//
//	stackpm_packages/
//	    npm/left@1.0.0  -> <cache>/packages/<hash>
//	    npm/@acme/widget@2.0.0/   (checked out: a real directory)
//	    .bin/left       -> ../npm/left@1.0.0/bin/left.js
package install
