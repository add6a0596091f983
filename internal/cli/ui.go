package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stackpm/pkg/pkgname"
)

var (
	colorCyan   = lipgloss.Color("36")  // versions, counters
	colorGreen  = lipgloss.Color("35")  // success
	colorYellow = lipgloss.Color("220") // warnings, links outside the store
	colorRed    = lipgloss.Color("167") // errors
	colorBlue   = lipgloss.Color("75")  // registry URLs, commands
	colorWhite  = lipgloss.Color("255") // install names
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	// StyleHighlight renders exact packages ("npm:left@1.0.0").
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleLink renders registry URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	StyleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// stdout receives command output; spinners and logs go to stderr.
var stdout io.Writer = os.Stdout

func printLine(line string) {
	fmt.Fprintln(stdout, line)
}

func printSuccess(format string, args ...any) {
	printLine(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	printLine(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	printLine(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	printLine("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a file the command wrote.
func printFile(path string) {
	printLine("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	printLine(styleKey.Render(key) + " " + StyleValue.Render(value))
}

// formatBinding renders "name → registry:name@version".
func formatBinding(name string, e pkgname.Exact) string {
	return StyleValue.Render(name) + " " + StyleDim.Render(iconArrow) + " " + StyleHighlight.Render(e.String())
}

// printStats prints the size of the resolve tree on one line, followed by
// the activity of the operation ("2 resolved", "1 linked").
func printStats(packages, roots int, counters ...string) {
	parts := append([]string{
		fmt.Sprintf("%d packages", packages),
		fmt.Sprintf("%d direct", roots),
	}, counters...)
	printLine("  " + StyleDim.Render(strings.Join(parts, " · ")))
}

// printNextStep suggests a command to run next.
func printNextStep(description, cmd string) {
	printLine(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}
