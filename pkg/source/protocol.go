package source

import (
	"context"
	"net/http"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// Protocol fetches one family of locators.
type Protocol interface {
	// Resolve pins a locator. Symbolic git refs become commit hashes;
	// already pinned locators are returned unchanged.
	Resolve(ctx context.Context, loc Locator) (Locator, error)

	// Download fetches loc and writes its contents into dest, which must be
	// an empty directory owned by the caller. On error dest holds partial
	// content and must be discarded.
	Download(ctx context.Context, loc Locator, dest string) error
}

// Doer sends HTTP requests. *fetch.Client and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Protocols dispatches locators to their protocol by kind.
type Protocols struct {
	Tarball Protocol
	Git     Protocol
	Link    Protocol
	File    Protocol
}

// NewProtocols builds the standard protocol set on top of an HTTP client.
// auth, if non-nil, supplies credentials for git over HTTP.
func NewProtocols(client Doer, auth GitAuth) *Protocols {
	return &Protocols{
		Tarball: &Tarball{Client: client},
		Git:     &Git{Auth: auth},
		Link:    Link{},
		File:    File{},
	}
}

// For returns the protocol handling loc. Registry locators have none.
func (p *Protocols) For(loc Locator) (Protocol, error) {
	var proto Protocol
	switch loc.Kind() {
	case KindTarball:
		proto = p.Tarball
	case KindGit:
		proto = p.Git
	case KindLink:
		proto = p.Link
	case KindFile:
		proto = p.File
	}
	if proto == nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "no source protocol for %q", loc.String())
	}
	if err := loc.validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidTarget, err, "invalid source")
	}
	return proto, nil
}

// Resolve pins loc with its protocol.
func (p *Protocols) Resolve(ctx context.Context, loc Locator) (Locator, error) {
	proto, err := p.For(loc)
	if err != nil {
		return Locator{}, err
	}
	return proto.Resolve(ctx, loc)
}

// Download fetches loc into dest with its protocol.
func (p *Protocols) Download(ctx context.Context, loc Locator, dest string) error {
	proto, err := p.For(loc)
	if err != nil {
		return err
	}
	return proto.Download(ctx, loc, dest)
}
