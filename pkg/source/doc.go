// Package source fetches package contents from source locators.
//
// A locator is "scheme:opaque[#fragment]". The scheme selects a [Protocol]:
//
//	https://host/left-1.0.0.tgz#sha512-<base64>   tarball, verified digest
//	git+https://host/acme/widget.git#v2.0.0       git, ref pinned by Resolve
//	git+ssh://git@host/acme/widget.git#<commit>   git over ssh
//	link:../widget                                local directory, symlinked
//	file:../widget-1.0.0.tgz                      local archive or directory
//
// Any other scheme is opaque and belongs to a registry endpoint.
//
// Resolve turns a locator into its reproducible form: git refs become commit
// hashes, everything else is returned unchanged. Download writes the package
// contents into a caller-owned directory. Archives lose their first path
// component and any symlink or device entries. Git checkouts lose their
// .git directory, so every installed package looks like an extracted
// tarball.
//
// When a tarball fragment holds an integrity digest, the body is hashed while
// it streams and a mismatch fails with *errors.IntegrityError. The caller
// must then discard the destination.
package source
