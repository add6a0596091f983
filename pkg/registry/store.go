package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/source"
)

// MarkerFile is written into every store entry.
const MarkerFile = ".stackpm.json"

// Marker records where a store entry came from and what it contained when
// it was finalized.
type Marker struct {
	Source string `json:"source"`
	Hash   string `json:"hash"`
	Digest string `json:"digest"`
}

// Decision answers a verification failure.
type Decision int

const (
	// DecisionRevert discards the local edits and relinks the store entry.
	DecisionRevert Decision = iota
	// DecisionCheckout keeps the edited directory as a checkout.
	DecisionCheckout
)

// VerificationFailure describes a checked-out directory whose content no
// longer matches the store entry it was copied from.
type VerificationFailure struct {
	Dir      string
	Source   string
	Reason   string
	Expected string
	Actual   string
}

// Verification failure reasons.
const (
	ReasonModified   = "modified"
	ReasonNoMarker   = "missing marker"
	ReasonOtherEntry = "copied from another entry"
)

// EnsureOptions configures EnsureInstall.
type EnsureOptions struct {
	Override *Override

	// Local is the project package slot. With FullVerify, a real directory
	// there is checked against its marker.
	Local      string
	FullVerify bool

	// OnVerificationFailure decides what to do with a modified checkout.
	// Without it a modification is an integrity error.
	OnVerificationFailure func(context.Context, VerificationFailure) (Decision, error)
}

// Installed describes the directory that holds a package.
type Installed struct {
	Config   *PackageConfig
	Override *Override
	Dir      string
	Hash     string

	// Changed is true when a new store entry was created.
	Changed bool

	// Linked is true for link: sources; Dir is the link target.
	Linked bool

	// CheckedOut is true when Dir is the local checkout, not the store.
	CheckedOut bool
}

// ResolveSource makes a declared source reproducible. Relative link: and
// file: paths are resolved against contextDir (the installing package's
// directory) or, for top-level installs, projectDir. Git refs are pinned to
// commits. Registry locators are returned unchanged.
func (m *Manager) ResolveSource(ctx context.Context, locator, contextDir, projectDir string) (string, error) {
	loc, err := source.ParseLocator(locator)
	if err != nil {
		return "", err
	}
	switch loc.Kind() {
	case source.KindRegistry:
		return loc.String(), nil
	case source.KindLink, source.KindFile:
		p := loc.Path()
		if !filepath.IsAbs(p) {
			base := projectDir
			if contextDir != "" {
				base = contextDir
			}
			p = filepath.Join(base, p)
		}
		loc.Opaque = filepath.Clean(p)
	case source.KindGit:
		if m.opts.Offline && !source.IsCommit(loc.Fragment) {
			return "", errors.New(errors.ErrCodeNoResolution, "cannot pin %s (offline)", loc.String())
		}
	}
	resolved, err := m.opts.Protocols.Resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

// StoreHash is the store key of a locator installed with an override.
func StoreHash(locator string, override *Override) string {
	h := sha256.New()
	io.WriteString(h, locator)
	if override != nil {
		h.Write([]byte{0})
		h.Write(canonicalConfig(override.Config))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EnsureInstall makes sure the package at locator is present in the store
// and returns its directory and configuration. An existing entry for the
// same locator and override is reused without downloading.
func (m *Manager) EnsureInstall(ctx context.Context, locator string, opts EnsureOptions) (*Installed, error) {
	loc, err := source.ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if loc.Kind() == source.KindLink {
		cfg, err := ReadConfig(loc.Path())
		if err != nil {
			return nil, err
		}
		return &Installed{Config: cfg, Dir: loc.Path(), Linked: true, Override: opts.Override}, nil
	}

	hash := StoreHash(locator, opts.Override)
	if opts.FullVerify && opts.Local != "" {
		if inst, err := m.verifyCheckout(ctx, locator, hash, opts); err != nil || inst != nil {
			return inst, err
		}
	}

	start := time.Now()
	dir := filepath.Join(m.StoreDir(), hash)
	reused := true
	if _, err := os.Stat(filepath.Join(dir, MarkerFile)); err != nil {
		reused = false
		err = m.build(ctx, loc, hash, opts.Override, dir)
		m.hooks.Install.OnFetch(ctx, locator, false, time.Since(start), err)
		if err != nil {
			return nil, err
		}
	} else {
		m.hooks.Install.OnFetch(ctx, locator, true, time.Since(start), nil)
	}

	cfg, err := ReadConfig(dir)
	if err != nil {
		return nil, err
	}
	return &Installed{Config: cfg, Override: opts.Override, Dir: dir, Hash: hash, Changed: !reused}, nil
}

// build downloads loc into a temporary entry and renames it into place.
func (m *Manager) build(ctx context.Context, loc source.Locator, hash string, override *Override, dir string) (err error) {
	if loc.Kind() == source.KindRegistry {
		if loc, err = m.registrySource(ctx, loc); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(m.StoreDir(), 0o755); err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	tmp := filepath.Join(m.StoreDir(), ".tmp-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return fmt.Errorf("create store entry: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tmp)
		}
	}()

	if err := m.opts.Protocols.Download(ctx, loc, tmp); err != nil {
		return err
	}
	if override != nil && len(override.Config) > 0 {
		cfg, err := ReadConfig(tmp)
		if err != nil {
			return err
		}
		if err := writeConfig(tmp, Merge(cfg.Raw(), override.Config)); err != nil {
			return err
		}
	}
	digest, err := Digest(tmp)
	if err != nil {
		return fmt.Errorf("hash store entry: %w", err)
	}
	if err := writeMarker(tmp, Marker{Source: loc.String(), Hash: hash, Digest: digest}); err != nil {
		return err
	}

	if err := os.Rename(tmp, dir); err != nil {
		// Another process finished the same entry first.
		if _, serr := os.Stat(filepath.Join(dir, MarkerFile)); serr == nil {
			os.RemoveAll(tmp)
			return nil
		}
		return fmt.Errorf("finalize store entry: %w", err)
	}
	m.logger.Debug("stored", "source", loc.String(), "hash", hash[:12])
	return nil
}

// registrySource turns "registry:name@version" into the published source.
func (m *Manager) registrySource(ctx context.Context, loc source.Locator) (source.Locator, error) {
	exact, err := pkgname.ParseExact(loc.String())
	if err != nil {
		return source.Locator{}, err
	}
	target, err := pkgname.NewTarget(exact.Registry, exact.Name.Name, exact.Version)
	if err != nil {
		return source.Locator{}, err
	}
	var v Version
	if res, err := m.Lookup(ctx, target); err == nil && res != nil {
		v = res.Versions[exact.Version]
	}
	if v.Source == "" {
		if v, err = m.resolveVersion(ctx, exact); err != nil {
			return source.Locator{}, err
		}
	}
	return source.ParseLocator(v.Source)
}

// verifyCheckout checks a real directory in the project slot. It returns a
// nil Installed when the store should be used. A directory that cannot be
// verified, because its marker is missing or names another entry, is
// handled like a modified one.
func (m *Manager) verifyCheckout(ctx context.Context, locator, hash string, opts EnsureOptions) (*Installed, error) {
	info, err := os.Lstat(opts.Local)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	failure := VerificationFailure{Dir: opts.Local, Source: locator}
	marker, err := ReadMarker(opts.Local)
	switch {
	case err != nil:
		failure.Reason = ReasonNoMarker
	case marker.Hash != hash:
		failure.Reason = ReasonOtherEntry
	default:
		failure.Expected = marker.Digest
	}
	if failure.Actual, err = Digest(opts.Local); err != nil {
		return nil, fmt.Errorf("hash %s: %w", opts.Local, err)
	}
	if failure.Reason == "" && failure.Actual != failure.Expected {
		failure.Reason = ReasonModified
	}

	if failure.Reason != "" {
		if opts.OnVerificationFailure == nil {
			expected := failure.Expected
			if expected == "" {
				expected = "(" + failure.Reason + ")"
			}
			return nil, &errors.IntegrityError{Source: opts.Local, Expected: expected, Actual: failure.Actual}
		}
		decision, err := opts.OnVerificationFailure(ctx, failure)
		if err != nil {
			return nil, err
		}
		if decision == DecisionRevert {
			m.logger.Info("reverting checkout", "dir", opts.Local, "reason", failure.Reason)
			return nil, os.RemoveAll(opts.Local)
		}
	}
	cfg, err := ReadConfig(opts.Local)
	if err != nil {
		return nil, err
	}
	return &Installed{Config: cfg, Override: opts.Override, Dir: opts.Local, Hash: hash, CheckedOut: true}, nil
}

// Digest hashes the regular files under dir, excluding the marker.
func Digest(dir string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == MarkerFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := "-"
		if info.Mode()&0o111 != 0 {
			mode = "x"
		}
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00", rel, mode, info.Size())
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(h, f)
		return err
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadMarker returns the marker of a store entry or checkout.
func ReadMarker(dir string) (Marker, error) {
	var mk Marker
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return mk, err
	}
	err = json.Unmarshal(data, &mk)
	return mk, err
}

func writeMarker(dir string, mk Marker) error {
	data, err := json.MarshalIndent(mk, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerFile), data, 0o644)
}
