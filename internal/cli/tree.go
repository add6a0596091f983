package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/render/nodelink"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var (
		dot, svg, detailed bool
		output             string
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the resolve tree of the project",
		Long: `Show the resolve tree recorded in stackpm.lock.

By default the tree is printed as text. --dot emits Graphviz DOT source and
--svg renders the diagram in-process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(c.dir)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, install.LockfileName)
			t, err := tree.Load(path)
			if err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Debug("loaded lockfile", "path", path, "packages", len(t.Packages()))

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			opts := nodelink.Options{Detailed: detailed, Title: filepath.Base(dir)}
			switch {
			case svg:
				data, rerr := nodelink.RenderSVG(nodelink.ToDOT(t, opts))
				if rerr != nil {
					return rerr
				}
				_, err = w.Write(data)
			case dot:
				_, err = io.WriteString(w, nodelink.ToDOT(t, opts))
			default:
				err = writeTree(w, t, detailed)
			}
			if err == nil && output != "" {
				printFile(output)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "emit Graphviz DOT")
	cmd.Flags().BoolVar(&svg, "svg", false, "render an SVG diagram")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include sources")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("dot", "svg")

	return cmd
}

// writeTree prints the bindings reachable from the roots, depth first.
// A package already on the current path is printed once more and marked
// as a cycle.
func writeTree(w io.Writer, t *tree.Tree, detailed bool) error {
	roots := t.Roots()
	if len(roots) == 0 {
		_, err := fmt.Fprintln(w, StyleDim.Render("(empty)"))
		return err
	}

	path := make(map[string]bool)
	var walk func(name string, e pkgname.Exact, prefix, branch, indent string) error
	walk = func(name string, e pkgname.Exact, prefix, branch, indent string) error {
		line := prefix + branch + formatBinding(name, e)
		dep, _ := t.Dependency(e)
		if detailed && dep.Source != "" {
			line += " " + StyleDim.Render(dep.Source)
		}
		key := e.String()
		if path[key] {
			_, err := fmt.Fprintln(w, line+" "+StyleWarning.Render("(cycle)"))
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}

		path[key] = true
		defer delete(path, key)
		names := slices.Sorted(maps.Keys(dep.Resolve))
		for i, child := range names {
			b, in := "├─ ", "│  "
			if i == len(names)-1 {
				b, in = "└─ ", "   "
			}
			if err := walk(child, dep.Resolve[child], prefix+indent, b, in); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(roots)) {
		if err := walk(name, roots[name], "", "", ""); err != nil {
			return err
		}
	}
	return nil
}
