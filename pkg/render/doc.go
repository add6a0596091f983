// Package render draws the resolve tree of a project.
//
// The [nodelink] subpackage produces Graphviz diagrams where every exact
// package is a box and every binding is an arrow from the installing
// package to the package it resolves to:
//
//	dot := nodelink.ToDOT(project.Tree, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(dot)
//
// [nodelink]: github.com/matzehuels/stackpm/pkg/render/nodelink
package render
