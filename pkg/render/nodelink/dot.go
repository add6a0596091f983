package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/tree"
)

const rootID = "."

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds the registry and source locator to node labels.
	Detailed bool

	// Title labels the project node.
	Title string
}

// ToDOT converts a resolve tree to Graphviz DOT format.
// The result can be rendered with [RenderSVG] or external Graphviz tools.
func ToDOT(t *tree.Tree, opts Options) string {
	title := opts.Title
	if title == "" {
		title = "project"
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [label=%q, shape=folder, fillcolor=lightgrey];\n", rootID, title)
	for _, e := range t.Packages() {
		dep, _ := t.Dependency(e)
		attrs := fmtAttrs(e, dep, fmtLabel(e, dep, opts.Detailed))
		fmt.Fprintf(&buf, "  %q [%s];\n", e.String(), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	t.Visit(func(e pkgname.Exact, b tree.Binding) bool {
		from := b.Parent
		if b.IsRoot() {
			from = rootID
		}
		if b.Name == e.Name.Name {
			fmt.Fprintf(&buf, "  %q -> %q;\n", from, e.String())
		} else {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", from, e.String(), b.Name)
		}
		return false
	})

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(e pkgname.Exact, dep tree.Dependency, detailed bool) string {
	label := e.Name.Name + "@" + e.Version
	if !detailed {
		return label
	}
	parts := []string{label, "registry: " + e.Registry}
	if dep.Source != "" {
		parts = append(parts, "source: "+dep.Source)
	}
	return strings.Join(parts, "\n")
}

func fmtAttrs(e pkgname.Exact, dep tree.Dependency, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if strings.HasPrefix(dep.Source, "link:") {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightyellow")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the svg tag so the diagram scales from its
// viewBox origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
