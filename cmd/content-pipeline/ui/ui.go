// Package ui provides terminal output helpers for the content-pipeline CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	out     io.Writer = os.Stdout
	errOut  io.Writer = os.Stderr
	verbose bool
	quiet   bool
)

// Init configures color and verbosity. Quiet suppresses everything but
// errors, for machine-readable output modes.
func Init(noColor, verboseOutput, quietOutput bool) {
	verbose = verboseOutput
	quiet = quietOutput
	if noColor {
		color.NoColor = true
	}
}

// SetOutput redirects standard and error output, for tests.
func SetOutput(stdout, stderr io.Writer) {
	out = stdout
	errOut = stderr
}

// Verbose reports whether verbose output was requested.
func Verbose() bool { return verbose }

// Success displays a success message.
func Success(format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgGreen).Fprintf(out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgYellow).Fprintf(out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgCyan).Fprintf(out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section displays a section header.
func Section(title string) {
	if quiet {
		return
	}
	bold := color.New(color.Bold)
	bold.Fprintf(out, "\n%s\n", title)
	fmt.Fprintf(out, "%s\n\n", strings.Repeat("=", len(title)))
}

// Table displays rows under headers, aligned in columns.
func Table(headers []string, rows [][]string) {
	if quiet {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// KeyValue displays a key-value pair.
func KeyValue(key, value string) {
	if quiet {
		return
	}
	fmt.Fprintf(out, "  %s: %s\n", color.New(color.Faint).Sprint(key), value)
}

// Box displays text in a box with borders.
func Box(w io.Writer, title, content string) {
	lines := strings.Split(content, "\n")
	width := len([]rune(title))
	for _, line := range lines {
		if n := len([]rune(line)); n > width {
			width = n
		}
	}
	if width < 40 {
		width = 40
	}

	fmt.Fprintf(w, "┌%s┐\n", strings.Repeat("─", width+2))
	if title != "" {
		fmt.Fprintf(w, "│ %-*s │\n", width, title)
		fmt.Fprintf(w, "├%s┤\n", strings.Repeat("─", width+2))
	}
	for _, line := range lines {
		fmt.Fprintf(w, "│ %-*s │\n", width, line)
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", width+2))
}

// ErrorBox displays an error message in a box on stderr.
func ErrorBox(title, message string) {
	fmt.Fprintln(errOut)
	Box(errOut, "✗ "+title, message)
	fmt.Fprintln(errOut)
}

// WarningBox displays a warning message in a box.
func WarningBox(title, message string) {
	if quiet {
		return
	}
	fmt.Fprintln(out)
	Box(out, "⚠ "+title, message)
	fmt.Fprintln(out)
}

// FormatDuration formats a duration for humans.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTime renders t in local time, or "never" for the zero/epoch time.
func FormatTime(t time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
