// Package tree holds the resolve tree, the install graph persisted as the
// project lockfile.
//
// The lockfile has two maps:
//
//	{
//	  "resolve": { "left": "npm:left@1.0.0" },
//	  "dependencies": {
//	    "npm:left@1.0.0": {
//	      "source": "https://registry.example/left/-/left-1.0.0.tgz#sha512-...",
//	      "resolve": { "right": "npm:right@2.3.1" }
//	    },
//	    "npm:right@2.3.1": { "source": "..." }
//	  }
//	}
//
// Root bindings come from the project manifest. Every other binding lives
// in the entry of the package that declared it. Packages may form cycles;
// bindings never do, because each binding names one exact package and the
// installer memoizes per binding.
//
// Entries that are no longer reachable from a root binding are removed by
// [Tree.Prune].
package tree
