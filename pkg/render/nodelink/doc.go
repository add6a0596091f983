// Package nodelink renders resolve trees as node-link diagrams.
//
// # Overview
//
// [ToDOT] turns a [tree.Tree] into Graphviz DOT source. The project itself
// is the single root node; each exact package is a rounded box and each
// binding an edge labeled with the install name when it differs from the
// package name (aliases such as "old" -> npm:right@2.0.0).
//
//	dot := nodelink.ToDOT(t, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(dot)
//
// # Options
//
//   - Detailed: node labels also carry the registry and source locator
//   - Title: label of the root node (defaults to "project")
//
// Packages whose source is a local link are drawn dashed.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering, so no Graphviz installation is needed.
package nodelink
