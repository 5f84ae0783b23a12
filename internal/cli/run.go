// Package cli implements the rxmine command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rxmine/internal/config"
	"github.com/calvinalkan/rxmine/internal/cpu"
	"github.com/calvinalkan/rxmine/internal/logging"
)

// EnvNodeDir overrides the sysfs directory NUMA topology is read from.
const EnvNodeDir = "RXMINE_NODE_DIR"

var errUnknownCommand = errors.New("unknown command")

// app is the state shared by every command.
type app struct {
	cfg   config.Config
	logs  *logging.Logging
	topo  cpu.Topology
	env   map[string]string
	stdin io.Reader
}

func commands(a *app) []*Command {
	return []*Command{
		BenchCmd(a),
		ConsoleCmd(a),
		NumaCmd(a),
		PrintConfigCmd(a),
	}
}

// Run is the main entry point. Returns exit code. A signal on sigCh cancels
// the running command.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("rxmine", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	logFile := globals.String("log-file", "", "Also write logs to `file`, rotated by size")
	debugLevel := globals.String("debug-level", "", "Log `level` or SUB=level,... list")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return exitUsage
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, commands(&app{cfg: config.Default()}))

		return exitOK
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    *workDir,
		ConfigPath: *configPath,
		Env:        env,
		Overrides:  config.Overrides{LogFile: *logFile, DebugLevel: *debugLevel},
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return exitError
	}

	logs, err := logging.New(logging.Options{Out: errOut, File: cfg.LogFile, Level: cfg.DebugLevel})
	if err != nil {
		fprintln(errOut, "error:", err)

		return exitError
	}

	defer func() { _ = logs.Close() }()

	nodeDir := env[EnvNodeDir]
	if nodeDir == "" {
		nodeDir = cpu.SysRoot
	}

	topo, err := cpu.Discover(nodeDir)
	if err != nil {
		logs.Logger(logging.SubCPU).Warnf("topology discovery failed, assuming one node: %v", err)

		topo = cpu.Uniform(runtime.NumCPU())
	}

	a := &app{cfg: cfg, logs: logs, topo: topo, env: env, stdin: stdin}

	var cmd *Command

	for _, c := range commands(a) {
		if c.Name() == rest[0] {
			cmd = c
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, rest[0]))
		printUsage(errOut, globals, commands(&app{cfg: config.Default()}))

		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				logs.Logger(logging.SubMiner).Infof("received %s, shutting down", sig)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(out, errOut), rest[1:])
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, cmds []*Command) {
	fprintln(w, `rxmine - RandomX dataset provisioning and hashing

Usage: rxmine [options] <command> [args]

Options:`)
	fprintln(w, globals.FlagUsages())

	if len(cmds) == 0 {
		return
	}

	fprintln(w, "Commands:")

	for _, c := range cmds {
		fprintln(w, c.HelpLine())
	}
}
