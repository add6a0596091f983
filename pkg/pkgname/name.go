package pkgname

import (
	"regexp"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
)

var (
	registryRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	nameRe     = regexp.MustCompile(`^@?[A-Za-z0-9._~-]+(/[A-Za-z0-9._~-]+)*$`)
)

// InvalidNameError is returned when a string is not a valid
// registry:name[@version] package name.
type InvalidNameError struct {
	Input  string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return "invalid package name " + quote(e.Input) + ": " + e.Reason
}

// Code returns the error code for this error type.
func (e *InvalidNameError) Code() errors.Code { return errors.ErrCodeInvalidName }

// Name is a parsed package identity. Registry and Name are required,
// Version is empty for wildcards.
type Name struct {
	Registry string
	Name     string
	Version  string
}

// Parse parses "registry:name[@version]".
func Parse(s string) (Name, error) {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return Name{}, &InvalidNameError{Input: s, Reason: "missing registry prefix"}
	}
	registry, rest := s[:colon], s[colon+1:]
	if !registryRe.MatchString(registry) {
		return Name{}, &InvalidNameError{Input: s, Reason: "invalid registry " + quote(registry)}
	}
	name, version := splitVersion(rest)
	if err := validateName(name); err != nil {
		return Name{}, &InvalidNameError{Input: s, Reason: errors.UserMessage(err)}
	}
	if strings.HasSuffix(rest, "@") {
		return Name{}, &InvalidNameError{Input: s, Reason: "empty version"}
	}
	return Name{Registry: registry, Name: name, Version: version}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns "registry:name@version", omitting the version when empty.
func (n Name) String() string {
	if n.Version == "" {
		return n.Registry + ":" + n.Name
	}
	return n.Registry + ":" + n.Name + "@" + n.Version
}

// Package returns "registry:name" without the version.
func (n Name) Package() string { return n.Registry + ":" + n.Name }

// Base returns the last path segment of the name, which is the default
// install name for the package.
func (n Name) Base() string {
	if i := strings.LastIndexByte(n.Name, '/'); i >= 0 {
		return n.Name[i+1:]
	}
	return n.Name
}

// splitVersion splits "name@version", ignoring a leading scope "@".
func splitVersion(s string) (name, version string) {
	start := 0
	if strings.HasPrefix(s, "@") {
		start = 1
	}
	if i := strings.IndexByte(s[start:], '@'); i >= 0 {
		return s[:start+i], s[start+i+1:]
	}
	return s, ""
}

func validateName(name string) error {
	if err := errors.ValidatePackageName(name); err != nil {
		return err
	}
	if !nameRe.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidName, "name must be made of path-safe segments")
	}
	return nil
}

func quote(s string) string { return `"` + s + `"` }
