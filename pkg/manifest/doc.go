// Package manifest reads and writes the project manifest (package.json).
//
// The installer only needs a small contract from the manifest: get and set
// values by key path, remember whether anything changed, and read the
// dependency sections and overrides:
//
//	{
//	  "dependencies":         { "left": "^1.0.0" },
//	  "devDependencies":      { "lint": "npm:eslint@^9" },
//	  "peerDependencies":     { ... },
//	  "optionalDependencies": { ... },
//	  "overrides":            { "npm:left@^1.0.0": { "main": "dist/index.js" } }
//	}
//
// A project is guarded by an exclusive file lock ([Lock]) while it is loaded,
// mutated and saved. A lock held by another process is reported as a
// LOCKED error rather than waited for.
package manifest
