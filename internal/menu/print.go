package menu

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/loykin/agentctl/internal/manager"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

// OK prints a success line.
func OK(w io.Writer, format string, a ...any) { line(w, okColor, "✓", format, a...) }

// Warn prints a warning line.
func Warn(w io.Writer, format string, a ...any) { line(w, warnColor, "⚠", format, a...) }

// Fail prints a failure line.
func Fail(w io.Writer, format string, a ...any) { line(w, failColor, "✗", format, a...) }

// Info prints an informational line.
func Info(w io.Writer, format string, a ...any) { line(w, infoColor, "ℹ", format, a...) }

func line(w io.Writer, c *color.Color, symbol, format string, a ...any) {
	_, _ = fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), fmt.Sprintf(format, a...))
}

// PrintBulk reports every agent of a bulk operation, failures with their cause.
func PrintBulk(w io.Writer, verb string, res manager.BulkResult) {
	for _, name := range res.Succeeded {
		OK(w, "%s %s", verb, name)
	}
	for _, name := range res.Failed {
		if err := res.Errors[name]; err != nil {
			Fail(w, "%s: %v", name, err)
		} else {
			Fail(w, "%s", name)
		}
	}
	if res.OK() {
		Info(w, "%s", res.Summary(verb))
	} else {
		Warn(w, "%s", res.Summary(verb))
	}
}
