package cli

import (
	"fmt"
	"io"
)

type warning struct {
	issue string
	hint  string
}

// IO is a command's stdout and stderr. Warnings are held back until
// Finish so they land after diagnostics and are not lost among log lines.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []warning
}

func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a degraded condition, such as huge pages falling back to
// standard pages. The command still prints its results but exits with 1.
func (o *IO) Warn(issue, hint string) {
	o.warnings = append(o.warnings, warning{issue: issue, hint: hint})
}

func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

func (o *IO) ErrPrintf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.errOut, format, a...)
}

// Finish flushes warnings and returns the exit code.
func (o *IO) Finish() int {
	for _, w := range o.warnings {
		o.ErrPrintf("warning: %s (%s)\n", w.issue, w.hint)
	}

	if len(o.warnings) > 0 {
		return exitError
	}

	return exitOK
}
