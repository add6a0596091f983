package source

import (
	"bytes"
	"context"
	"hash"
	"io"
	"net/http"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// Tarball downloads http(s) archives. A fragment holding a hex or SRI digest
// is verified while the body streams through extraction.
type Tarball struct {
	Client Doer
}

// Resolve returns loc unchanged: tarball URLs are already pinned.
func (t *Tarball) Resolve(_ context.Context, loc Locator) (Locator, error) {
	return loc, nil
}

// Download fetches and extracts the archive into dest.
func (t *Tarball) Download(ctx context.Context, loc Locator, dest string) error {
	integrity, checked, err := ParseIntegrity(loc.Fragment)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidTarget, err, "invalid source %q", loc.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL(), nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidTarget, err, "invalid source %q", loc.String())
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "download %s", loc.URL())
	}
	defer resp.Body.Close()
	if err := StatusError(resp, loc.URL()); err != nil {
		return err
	}

	var body io.Reader = resp.Body
	var h hash.Hash
	if checked {
		h = integrity.New()
		body = io.TeeReader(resp.Body, h)
	}
	if err := Extract(body, dest); err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "extract %s", loc.URL())
	}
	if !checked {
		return nil
	}
	// Trailing padding after the tar end marker is part of the digest.
	if _, err := io.Copy(io.Discard, body); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "download %s", loc.URL())
	}
	if actual := h.Sum(nil); !bytes.Equal(actual, integrity.Digest) {
		return &errors.IntegrityError{
			Source:   loc.URL(),
			Expected: integrity.String(),
			Actual:   integrity.Format(actual),
		}
	}
	return nil
}

// StatusError maps a non-2xx response to a coded error.
func StatusError(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeUnauthorized, "%s: %s", url, resp.Status)
	case resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrCodeForbidden, "%s: %s", url, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "%s: %s", url, resp.Status)
	}
	return errors.New(errors.ErrCodeNetwork, "%s: %s", url, resp.Status)
}
