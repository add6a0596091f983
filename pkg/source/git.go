package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/matzehuels/stackpm/pkg/errors"
)

var commitRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// GitAuth returns basic credentials for a git URL. ok is false when none are
// known, in which case the transport default applies (ssh agent for ssh).
type GitAuth func(ctx context.Context, url string) (username, password string, ok bool)

// RemoteRef is a reference advertised by a remote.
type RemoteRef struct {
	Name   string // short name: "main", "v1.2.0", "HEAD"
	Hash   string // commit hash; annotated tags are peeled
	Tag    bool
	Branch bool
}

// Git clones repositories with go-git. Locators take the form
// "git+https://host/repo.git#<ref>", where ref is a branch, a tag, a commit
// hash or "semver:<range>" for the highest matching tag.
type Git struct {
	Auth GitAuth
}

// IsCommit reports whether ref is a full commit hash.
func IsCommit(ref string) bool { return commitRe.MatchString(ref) }

func (g *Git) auth(ctx context.Context, url string) transport.AuthMethod {
	if g.Auth == nil || !strings.HasPrefix(url, "http") {
		return nil
	}
	user, pass, ok := g.Auth(ctx, url)
	if !ok {
		return nil
	}
	return &githttp.BasicAuth{Username: user, Password: pass}
}

// ListRefs lists the branches, tags and HEAD of a remote without cloning.
func (g *Git) ListRefs(ctx context.Context, url string) ([]RemoteRef, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{
		Auth:          g.auth(ctx, url),
		PeelingOption: git.AppendPeeled,
	})
	if err != nil {
		return nil, classifyGitError(err, url)
	}

	hashes := make(map[plumbing.ReferenceName]plumbing.Hash, len(refs))
	var head *plumbing.Reference
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD {
			head = ref
			continue
		}
		name := ref.Name()
		if peeled, ok := strings.CutSuffix(name.String(), "^{}"); ok {
			hashes[plumbing.ReferenceName(peeled)] = ref.Hash()
			continue
		}
		if _, seen := hashes[name]; !seen {
			hashes[name] = ref.Hash()
		}
	}

	var out []RemoteRef
	for name, hash := range hashes {
		if !name.IsTag() && !name.IsBranch() {
			continue
		}
		out = append(out, RemoteRef{Name: name.Short(), Hash: hash.String(), Tag: name.IsTag(), Branch: name.IsBranch()})
	}
	slices.SortFunc(out, func(a, b RemoteRef) int { return strings.Compare(a.Name, b.Name) })
	if head != nil {
		hash := head.Hash()
		if head.Type() == plumbing.SymbolicReference {
			hash = hashes[head.Target()]
		}
		if !hash.IsZero() {
			out = append(out, RemoteRef{Name: "HEAD", Hash: hash.String()})
		}
	}
	return out, nil
}

// Resolve pins the fragment of loc to a commit hash.
func (g *Git) Resolve(ctx context.Context, loc Locator) (Locator, error) {
	if IsCommit(loc.Fragment) {
		return loc, nil
	}
	refs, err := g.ListRefs(ctx, loc.URL())
	if err != nil {
		return Locator{}, err
	}
	commit, err := pickRef(refs, loc.Fragment)
	if err != nil {
		return Locator{}, errors.Wrap(errors.ErrCodeNoResolution, err, "resolve %s", loc.String())
	}
	return loc.WithFragment(commit), nil
}

func pickRef(refs []RemoteRef, want string) (string, error) {
	if want == "" {
		want = "HEAD"
	}
	if rng, ok := strings.CutPrefix(want, "semver:"); ok {
		return pickSemverTag(refs, rng)
	}
	// Tags win over branches of the same name.
	var branch string
	for _, r := range refs {
		switch {
		case r.Name == want && r.Tag:
			return r.Hash, nil
		case r.Name == want:
			branch = r.Hash
		}
	}
	if branch != "" {
		return branch, nil
	}
	return "", fmt.Errorf("ref %q not found", want)
}

func pickSemverTag(refs []RemoteRef, rng string) (string, error) {
	c, err := semver.NewConstraint(rng)
	if err != nil {
		return "", fmt.Errorf("invalid range %q: %w", rng, err)
	}
	var best *semver.Version
	var hash string
	for _, r := range refs {
		if !r.Tag {
			continue
		}
		v, err := semver.NewVersion(r.Name)
		if err != nil || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, hash = v, r.Hash
		}
	}
	if best == nil {
		return "", fmt.Errorf("no tag matches %q", rng)
	}
	return hash, nil
}

// Download clones the repository in full, checks out the pinned commit and
// removes the .git directory.
func (g *Git) Download(ctx context.Context, loc Locator, dest string) error {
	if !IsCommit(loc.Fragment) {
		resolved, err := g.Resolve(ctx, loc)
		if err != nil {
			return err
		}
		loc = resolved
	}

	url := loc.URL()
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:  url,
		Auth: g.auth(ctx, url),
	})
	if err != nil {
		return classifyGitError(err, url)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(loc.Fragment))
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotFound, err, "commit %s not found in %s", loc.Fragment, url)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, err)
	}
	return os.RemoveAll(filepath.Join(dest, ".git"))
}

func classifyGitError(err error, url string) error {
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired):
		return errors.Wrap(errors.ErrCodeUnauthorized, err, "git %s", url)
	case stderrors.Is(err, transport.ErrAuthorizationFailed):
		return errors.Wrap(errors.ErrCodeForbidden, err, "git %s", url)
	case stderrors.Is(err, transport.ErrRepositoryNotFound):
		return errors.Wrap(errors.ErrCodeNotFound, err, "git %s", url)
	}
	return errors.Wrap(errors.ErrCodeNetwork, err, "git %s", url)
}
