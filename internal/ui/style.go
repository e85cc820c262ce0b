package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintLogo renders the colored schedloom banner to stderr.
func PrintLogo() {
	w := os.Stderr
	frame := color.New(color.FgCyan)
	bars := color.New(color.FgYellow)
	crit := color.New(color.FgRed)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +------------------------------+")
	bars.Fprintln(w, "   |  ====                        |")
	crit.Fprintln(w, "   |      ========                |")
	bars.Fprintln(w, "   |      ===    ------           |")
	crit.Fprintln(w, "   |              ==========      |")
	brand.Fprintln(w, "   |   S C H E D L O O M          |")
	frame.Fprintln(w, "   +------------------------------+")
	tag.Fprintf(w, "   %s Critical path scheduling\n", Dim("📅"))
	fmt.Fprintln(w)
}

// StatusIcon returns a colored icon for a task lifecycle state or a run
// status.
func StatusIcon(status string) string {
	switch status {
	case "committed", "completed":
		return Green("✓")
	case "tentative", "running":
		return Cyan("◐")
	case "locked":
		return Yellow("🔒")
	case "failed":
		return Red("✗")
	default:
		return Dim("◌")
	}
}

// VarianceStatus colors a baseline comparison status.
func VarianceStatus(status string) string {
	switch status {
	case "slipped":
		return BoldRed(status)
	case "ahead":
		return Green(status)
	case "added":
		return Cyan(status)
	default:
		return Dim(status)
	}
}

// Float colors a float value: red when negative, yellow when critical.
func Float(days int) string {
	s := fmt.Sprintf("%dd", days)
	switch {
	case days < 0:
		return BoldRed(s)
	case days == 0:
		return BoldYellow(s)
	default:
		return s
	}
}

// Signed formats a day variance with an explicit sign.
func Signed(days int) string {
	switch {
	case days > 0:
		return Red(fmt.Sprintf("+%dd", days))
	case days < 0:
		return Green(fmt.Sprintf("%dd", days))
	default:
		return Dim("0d")
	}
}
