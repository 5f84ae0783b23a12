package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Exit codes. Usage errors are distinct so scripts driving bench runs can
// tell a typo from a failed provisioning.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Command is one rxmine subcommand.
type Command struct {
	Flags *flag.FlagSet

	// Usage starts with the command name, e.g. "bench [flags]".
	Usage string
	Short string
	Long  string

	// Examples are full invocations shown under --help.
	Examples []string

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine is the command's row in the global usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-30s %s", c.Usage, c.Short)
}

// PrintHelp writes "rxmine <cmd> --help" output.
func (c *Command) PrintHelp(o *IO) {
	o.Printf("Usage: rxmine %s\n\n", c.Usage)

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags.HasFlags() {
		o.Printf("\nFlags:\n%s", c.Flags.FlagUsages())
	}

	if len(c.Examples) > 0 {
		o.Println("\nExamples:")

		for _, ex := range c.Examples {
			o.Println("  " + ex)
		}
	}
}

// Run parses args and executes the command, returning the exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o)

		return exitOK
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintf("run 'rxmine %s --help' for usage\n", c.Name())

		return exitUsage
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return exitError
	}

	return o.Finish()
}
