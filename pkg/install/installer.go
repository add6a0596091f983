package install

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// Options control one top-level operation.
type Options struct {
	// Latest re-resolves secondary dependencies instead of reusing the
	// tree's current resolutions.
	Latest bool

	// Lock reuses existing tree resolutions wherever they satisfy the
	// declared range.
	Lock bool

	// Dedupe rebinds older resolutions of a package to a newly resolved
	// version when their declared range accepts it.
	Dedupe bool

	// PreferUnstable lets ranges pick prereleases of matching versions.
	PreferUnstable bool

	// FullVerify checks checked-out packages against their store digest.
	FullVerify bool
}

// Install is one requested install.
type Install struct {
	// Name is the install name. Empty infers it from Target.
	Name string

	// Parent is the exact package that depends on Name; empty for
	// top-level and peer installs.
	Parent string

	Target   pkgname.Ref
	Type     manifest.DepType
	Override *registry.Override

	// ancestors are the install names leading to this install.
	ancestors []string

	// contextDir resolves relative link: and file: targets.
	contextDir string
}

func (in Install) binding() tree.Binding {
	return tree.Binding{Name: in.Name, Parent: in.Parent}
}

// nested reports whether in was declared by another package.
func (in Install) nested() bool { return len(in.ancestors) > 0 }

func (in Install) chain() []string {
	return append(append([]string(nil), in.ancestors...), in.Name)
}

func (in Install) key() string {
	return in.Parent + "|" + in.Name
}

// BusyError is returned when a top-level operation starts while another
// is running.
type BusyError struct {
	Operation string
	Running   string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("cannot %s: %s already in progress", e.Operation, e.Running)
}

// Code implements the coded error contract.
func (e *BusyError) Code() errors.Code { return errors.ErrCodeBusy }

// AmbiguousSelectorError is returned when a selector matches more than one
// distinct package.
type AmbiguousSelectorError struct {
	Selector string
	Matches  []string
}

func (e *AmbiguousSelectorError) Error() string {
	return fmt.Sprintf("selector %q is ambiguous: matches %s", e.Selector, strings.Join(e.Matches, ", "))
}

// Code implements the coded error contract.
func (e *AmbiguousSelectorError) Code() errors.Code { return errors.ErrCodeAmbiguousSelector }

// Config wires an Installer.
type Config struct {
	Project  *Project
	Registry *registry.Manager
	Prompter Prompter

	// DefaultRegistry qualifies bare manifest ranges. Defaults to "npm".
	DefaultRegistry string

	Hooks  observability.Hooks
	Logger *log.Logger
}

// Installer runs top-level operations against one project.
type Installer struct {
	project         *Project
	registry        *registry.Manager
	prompter        Prompter
	defaultRegistry string
	hooks           observability.Hooks
	logger          *log.Logger

	mu      sync.Mutex
	running string
	busy    atomic.Bool
}

// New creates an Installer.
func New(cfg Config) *Installer {
	if cfg.DefaultRegistry == "" {
		cfg.DefaultRegistry = "npm"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if cfg.Prompter == nil {
		cfg.Prompter = &StaticPrompter{}
	}
	return &Installer{
		project:         cfg.Project,
		registry:        cfg.Registry,
		prompter:        cfg.Prompter,
		defaultRegistry: cfg.DefaultRegistry,
		hooks:           cfg.Hooks.WithDefaults(),
		logger:          cfg.Logger,
	}
}

// Project returns the project the installer works on.
func (i *Installer) Project() *Project { return i.project }

// operation is the state of one top-level call.
type operation struct {
	*Installer
	ctx  context.Context
	opts Options

	group    errgroup.Group
	installs *flights[resolved]
	sources  *flights[*registry.Installed]

	overrides []registry.Override
	primary   map[string]manifest.PrimaryRange

	mu        sync.Mutex
	secondary map[string]map[string]pkgname.Ref
}

// resolved is the outcome of one package install.
type resolved struct {
	Exact pkgname.Exact

	// Pinned is the ref to record as the primary range of a fresh install.
	Pinned pkgname.Ref
}

func (i *Installer) begin(ctx context.Context, name string, opts Options) (*operation, error) {
	i.mu.Lock()
	if !i.busy.CompareAndSwap(false, true) {
		running := i.running
		i.mu.Unlock()
		return nil, &BusyError{Operation: name, Running: running}
	}
	i.running = name
	i.mu.Unlock()

	op := &operation{
		Installer: i,
		ctx:       ctx,
		opts:      opts,
		installs:  newFlights[resolved](),
		sources:   newFlights[*registry.Installed](),
		secondary: make(map[string]map[string]pkgname.Ref),
	}
	if err := op.reload(); err != nil {
		op.end()
		return nil, err
	}
	i.registry.ResetOperation()
	i.logger.Debug("operation started", "op", name)
	return op, nil
}

// reload re-reads the declared ranges and overrides from the manifest.
func (op *operation) reload() error {
	overrides, err := op.project.Manifest.Overrides(op.defaultRegistry)
	if err != nil {
		return err
	}
	primary, err := op.project.Manifest.PrimaryRanges(op.defaultRegistry)
	if err != nil {
		return err
	}
	op.overrides, op.primary = overrides, primary
	return nil
}

func (op *operation) end() {
	i := op.Installer
	i.mu.Lock()
	i.running = ""
	i.mu.Unlock()
	i.busy.Store(false)
}

// finish prunes the tree and persists the project once every task has
// settled. A failed operation persists nothing.
func (op *operation) finish(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if err := op.clean(); err != nil {
		return false, err
	}
	return op.project.Save()
}

// wrapChain wraps err once per install name, outermost first, so the
// message reads as the path from the top-level install to the failure.
func wrapChain(chain []string, err error) error {
	for i := len(chain) - 1; i >= 0; i-- {
		err = errors.Wrap(errors.ErrCodeInstallFailed, err, "unable to install %q", chain[i])
	}
	return err
}
