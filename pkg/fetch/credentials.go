package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Credentials authenticate requests to one origin. A non-empty Token is sent
// as a bearer token, otherwise Username and Password as basic auth.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// IsZero reports whether c carries nothing.
func (c Credentials) IsZero() bool { return c == Credentials{} }

// Apply sets the Authorization header of req.
func (c Credentials) Apply(req *http.Request) {
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Username != "" || c.Password != "":
		raw := c.Username + ":" + c.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	}
}

// AuthFunc is a registry auth hook. It receives the request URL, the
// credentials resolved so far and, on re-authorization, the headers of the
// response that rejected them. ok is false when the hook has nothing to add.
type AuthFunc func(ctx context.Context, u *url.URL, current Credentials, unauthorized http.Header) (creds Credentials, ok bool, err error)

// Helper is an ambient credential source such as a git credential helper.
type Helper interface {
	Fill(ctx context.Context, u *url.URL) (Credentials, bool, error)
}

// origin returns scheme://host of u, the credential cache key.
func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// Origin returns the "scheme://host" key credentials are stored under.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q has no scheme or host", rawURL)
	}
	return origin(u), nil
}

func userinfo(u *url.URL) (Credentials, bool) {
	if u.User == nil {
		return Credentials{}, false
	}
	pass, _ := u.User.Password()
	c := Credentials{Username: u.User.Username(), Password: pass}
	return c, !c.IsZero()
}
