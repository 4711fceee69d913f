// Package output renders attack reports for people and for machines.
package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title       *color.Color
	Rule        *color.Color
	Label       *color.Color
	Value       *color.Color
	StatusOK    *color.Color
	StatusWarn  *color.Color
	StatusError *color.Color
	Success     *color.Color
	Error       *color.Color
	Highlight   *color.Color
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value,
		s.StatusOK, s.StatusWarn, s.StatusError,
		s.Success, s.Error, s.Highlight,
	}
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Title:       color.New(color.Bold),
		Rule:        color.New(color.FgCyan),
		Label:       color.New(color.FgYellow),
		Value:       color.New(color.FgCyan),
		StatusOK:    color.New(color.FgGreen, color.Bold),
		StatusWarn:  color.New(color.FgYellow, color.Bold),
		StatusError: color.New(color.FgRed, color.Bold),
		Success:     color.New(color.FgGreen),
		Error:       color.New(color.FgRed),
		Highlight:   color.New(color.FgMagenta, color.Bold),
	}
	// Whether to color is decided by the caller, not by the global stdout check
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// Status returns the color for an HTTP status code.
func (s *ColorScheme) Status(code int) *color.Color {
	switch {
	case code >= 500:
		return s.StatusError
	case code >= 400:
		return s.StatusWarn
	default:
		return s.StatusOK
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks if the environment allows colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// SchemeFor picks the color scheme for w.
func SchemeFor(w io.Writer, noColor bool) *ColorScheme {
	if noColor || !IsTerminal(w) || !supportsColors() {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(scheme *ColorScheme) string {
	return scheme.Success.Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(scheme *ColorScheme) string {
	return scheme.Error.Sprint("✗")
}
