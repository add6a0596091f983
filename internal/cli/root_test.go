package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matzehuels/stackpm/pkg/buildinfo"
)

func TestRootCommandSubcommands(t *testing.T) {
	root := NewRoot(New(&bytes.Buffer{}, LogInfo))

	for _, name := range []string{
		"install", "update", "link", "checkout", "uninstall", "clean",
		"tree", "cache", "auth", "completion", "version",
	} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, alias := range []string{"i", "add", "rm", "up"} {
		if _, _, err := root.Find([]string{alias}); err != nil {
			t.Errorf("alias %q not registered", alias)
		}
	}
}

func TestRootCommandFlags(t *testing.T) {
	root := NewRoot(New(&bytes.Buffer{}, LogInfo))
	for _, name := range []string{"config", "dir", "yes", "offline", "verbose"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s missing", name)
		}
	}
}

func TestVerboseFlagSetsDebug(t *testing.T) {
	c := New(&bytes.Buffer{}, LogInfo)
	root := NewRoot(c)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--verbose", "version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !c.verbose() {
		t.Error("--verbose did not switch to debug")
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRoot(New(&bytes.Buffer{}, LogInfo))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "version: "+buildinfo.Version) {
		t.Errorf("output = %q", out.String())
	}
}
