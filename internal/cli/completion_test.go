package cli

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			root := NewRoot(New(&bytes.Buffer{}, LogInfo))
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"completion", shell})
			if err := root.Execute(); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), "stackpm") {
				t.Errorf("%s script does not mention stackpm", shell)
			}
		})
	}
}

func TestCompleteInstalled(t *testing.T) {
	srv := newRegistry(t)
	c, _ := testCLI(t, `
[lookup_cache]
backend = "none"

[registries.npm]
type = "npm"
url = "`+srv.URL+`"
`)
	c.errOut = &bytes.Buffer{}
	captureStdout(t)
	project := t.TempDir()

	// No lockfile yet.
	c.dir = project
	if got, dir := c.completeInstalled(nil, nil, ""); len(got) != 0 || dir != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("empty project = %v, %v", got, dir)
	}

	if err := newTestRoot(c, "--dir", project, "install", "left@^1.0.0").Execute(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name       string
		args       []string
		toComplete string
		want       []string
	}{
		{"all", nil, "", []string{"left\tnpm:left@1.0.0"}},
		{"prefix", nil, "le", []string{"left\tnpm:left@1.0.0"}},
		{"no match", nil, "ri", nil},
		{"already given", []string{"left"}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := c.completeInstalled(nil, tt.args, tt.toComplete)
			if !slices.Equal(got, tt.want) {
				t.Errorf("completeInstalled = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompleteRegistries(t *testing.T) {
	c, _ := testCLI(t, `
[registries.internal]
type = "npm"
url = "https://npm.internal.example"
`)
	got, _ := c.completeRegistries(nil, nil, "in")
	if want := []string{"internal\thttps://npm.internal.example"}; !slices.Equal(got, want) {
		t.Errorf("completeRegistries = %q, want %q", got, want)
	}
	all, _ := c.completeRegistries(nil, nil, "")
	if !slices.ContainsFunc(all, func(s string) bool { return strings.HasPrefix(s, "npm\t") }) {
		t.Errorf("default npm registry missing: %q", all)
	}
	if got, _ := c.completeRegistries(nil, []string{"npm"}, ""); got != nil {
		t.Errorf("second argument completed: %q", got)
	}
}
