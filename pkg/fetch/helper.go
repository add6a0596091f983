package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// GitHelper asks "git credential fill" for credentials, which consults
// whatever helpers the user configured for git (keychain, libsecret, ...).
type GitHelper struct {
	// Command is the git binary. Empty means "git" on PATH.
	Command string
}

// Fill implements Helper. A missing git binary or a helper with no answer
// yields ok == false, not an error.
func (h GitHelper) Fill(ctx context.Context, u *url.URL) (Credentials, bool, error) {
	bin := h.Command
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return Credentials{}, false, nil
	}

	cmd := exec.CommandContext(ctx, bin, "credential", "fill")
	cmd.Stdin = strings.NewReader(credentialRequest(u))
	// Never let git prompt on the terminal.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=true")
	out, err := cmd.Output()
	if err != nil {
		return Credentials{}, false, nil
	}
	creds, err := parseCredentialResponse(out)
	if err != nil {
		return Credentials{}, false, err
	}
	return creds, !creds.IsZero(), nil
}

func credentialRequest(u *url.URL) string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol=%s\n", u.Scheme)
	fmt.Fprintf(&b, "host=%s\n", u.Host)
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		fmt.Fprintf(&b, "path=%s\n", p)
	}
	b.WriteString("\n")
	return b.String()
}

func parseCredentialResponse(out []byte) (Credentials, error) {
	var c Credentials
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "username":
			c.Username = value
		case "password":
			c.Password = value
		}
	}
	return c, sc.Err()
}
