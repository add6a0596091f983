package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/pkgname"
)

// operationFlags are the install options shared by install and update.
type operationFlags struct {
	preferUnstable bool
	noDedupe       bool
	fullVerify     bool
}

func (f *operationFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.preferUnstable, "prefer-unstable", false, "let ranges pick prerelease versions")
	cmd.Flags().BoolVar(&f.noDedupe, "no-dedupe", false, "keep older resolutions of upgraded packages")
	cmd.Flags().BoolVar(&f.fullVerify, "full-verify", false, "check checked-out packages against the store")
}

// apply layers the flags over the configured options.
func (f *operationFlags) apply(opts install.Options) install.Options {
	if f.preferUnstable {
		opts.PreferUnstable = true
	}
	if f.noDedupe {
		opts.Dedupe = false
	}
	opts.FullVerify = f.fullVerify
	return opts
}

// runOperation opens a session, runs fn behind a spinner fed by the
// install events and prints a summary of the project afterwards.
func (c *CLI) runOperation(ctx context.Context, active, done string, fn func(context.Context, *session) (bool, error)) error {
	act := &activity{}
	s, err := c.openSession(ctx, c.hooks(act))
	if err != nil {
		return err
	}
	defer s.Close()

	prog := newProgress(c.Logger)
	var spinner *Spinner
	if !c.verbose() {
		spinner = newSpinner(ctx, c.errOut, active+"...", act)
		spinner.Start()
		s.prompter.onPrompt(spinner.Stop)
	}
	changed, err := fn(ctx, s)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	printSummary(s.project, changed, act)
	prog.done(done, append(act.keyvals(), "changed", changed)...)
	return nil
}

// printSummary lists the root bindings of the project and what the
// operation did.
func printSummary(p *install.Project, changed bool, act *activity) {
	if changed {
		printSuccess("Saved %s and %s", manifest.FileName, install.LockfileName)
	} else {
		printInfo("Already up to date")
	}
	roots := p.Tree.Roots()
	for _, name := range slices.Sorted(maps.Keys(roots)) {
		printLine("  " + formatBinding(name, roots[name]))
	}
	printStats(len(p.Tree.Packages()), len(roots), act.parts()...)
}

// parseInstalls turns command line arguments into installs. An argument is
// a target ("left@^1.0.0", "npm:left@^1.0.0"), a locator
// ("git+https://host/repo.git#v1", "link:../dir") or either of them behind
// an alias ("old=npm:right@~2.0.0").
func parseInstalls(args []string, typ manifest.DepType, defaultRegistry string) ([]install.Install, error) {
	installs := make([]install.Install, 0, len(args))
	for _, arg := range args {
		name, value := splitAlias(arg)
		ref, err := parseArgRef(name, value, defaultRegistry)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid package %q", arg)
		}
		installs = append(installs, install.Install{Name: name, Target: ref, Type: typ})
	}
	return installs, nil
}

// splitAlias splits "name=value". Locators are never split since their
// query strings may contain "=".
func splitAlias(arg string) (name, value string) {
	if pkgname.IsLocator(arg) {
		return "", arg
	}
	name, value, ok := strings.Cut(arg, "=")
	if !ok || strings.ContainsAny(name, ":") {
		return "", arg
	}
	return name, value
}

func parseArgRef(name, value, defaultRegistry string) (pkgname.Ref, error) {
	if value == "" {
		return nil, fmt.Errorf("empty package")
	}
	if pkgname.IsLocator(value) || errors.LooksLikePath(value) || hasRegistry(value) {
		return pkgname.ParseDeclared(name, value, defaultRegistry)
	}
	return pkgname.ParseTarget(defaultRegistry + ":" + value)
}

// hasRegistry reports whether value starts with "registry:".
func hasRegistry(value string) bool {
	i := strings.IndexByte(value, ':')
	return i > 0 && !strings.ContainsAny(value[:i], "@/")
}

// depType maps the dependency type flags to a manifest section.
func depType(dev, peer, optional bool) (manifest.DepType, error) {
	n := 0
	typ := manifest.Primary
	for _, f := range []struct {
		set bool
		typ manifest.DepType
	}{{dev, manifest.Dev}, {peer, manifest.Peer}, {optional, manifest.Optional}} {
		if f.set {
			n++
			typ = f.typ
		}
	}
	if n > 1 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "--dev, --peer and --optional are mutually exclusive")
	}
	return typ, nil
}
