package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rxmine/internal/job"
)

// ConsoleCmd returns the console command.
func ConsoleCmd(a *app) *Command {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.Int("threads", 0, "Hash threads (default: from cpu.max-threads-hint)")

	var af algoFlags
	af.register(fs)

	return &Command{
		Flags: fs,
		Usage: "console [flags]",
		Short: "Interactive miner console",
		Examples: []string{
			"rxmine console",
			"printf 'job rx/0 <seed-hex> 3000000\\nwait\\nstatus\\n' | rxmine console",
		},
		Long: `Start the miner and read commands from stdin. Jobs are submitted by hand;
type 'help' for the command list.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			threads, _ := fs.GetInt("threads")

			m, err := startMiner(ctx, a, a.cfg, threads)
			if err != nil {
				return err
			}

			defer m.stop()

			c := &console{o: o, m: m, algo: &af}

			return c.run(ctx, newLineReader(a))
		},
	}
}

// lineReader is satisfied by *liner.State.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

func newLineReader(a *app) lineReader {
	if f, ok := a.stdin.(*os.File); ok && isTerminal(f) && liner.TerminalSupported() {
		l := liner.NewLiner()
		l.SetCtrlCAborts(true)
		l.SetCompleter(completeCommand)

		h := &historyLiner{State: l, path: historyFile(a.env)}
		h.load()

		return h
	}

	return &scanReader{sc: bufio.NewScanner(a.stdin)}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()

	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func historyFile(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".rxmine_history")
	}

	return ""
}

// historyLiner persists history across sessions.
type historyLiner struct {
	*liner.State
	path string
}

func (h *historyLiner) load() {
	if h.path == "" {
		return
	}

	if f, err := os.Open(h.path); err == nil {
		_, _ = h.ReadHistory(f)
		_ = f.Close()
	}
}

func (h *historyLiner) Close() error {
	if h.path != "" {
		if f, err := os.Create(h.path); err == nil {
			_, _ = h.WriteHistory(f)
			_ = f.Close()
		}
	}

	return h.State.Close()
}

// scanReader reads commands from a pipe or file, without prompts.
type scanReader struct {
	sc *bufio.Scanner
}

func (s *scanReader) Prompt(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}

	if err := s.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*scanReader) AppendHistory(string) {}
func (*scanReader) Close() error         { return nil }

var consoleCommands = []string{"job", "wait", "status", "pages", "hashrate", "help", "quit", "exit"}

func completeCommand(line string) []string {
	var out []string

	for _, c := range consoleCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}

	return out
}

type console struct {
	o    *IO
	m    *miner
	algo *algoFlags
	jobs int
}

func (c *console) run(ctx context.Context, lr lineReader) error {
	defer func() { _ = lr.Close() }()

	for ctx.Err() == nil {
		line, err := lr.Prompt("rxmine> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lr.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			c.help()
		case "job":
			c.job(ctx, args)
		case "wait":
			c.wait(ctx, args)
		case "status":
			c.status()
		case "pages":
			pages := c.m.rx.HugePages()
			c.o.Printf("huge pages %s (%.0f%%)\n", pages, pages.Percent())
		case "hashrate":
			st := c.m.pool.Stats()
			c.o.Printf("hashes %d, waits %d, %.1f H/s\n", st.Hashes, st.Waits, st.Hashrate())
		default:
			c.o.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	return nil
}

func (c *console) help() {
	c.o.Println("Commands:")
	c.o.Println("  job <algo> <seed-hex> <height>   Submit a job")
	c.o.Println("  wait [timeout]                   Wait until the last job is active")
	c.o.Println("  status                           Show active and pending jobs")
	c.o.Println("  pages                            Show huge page usage")
	c.o.Println("  hashrate                         Show hash counters")
	c.o.Println("  help                             Show this help")
	c.o.Println("  quit                             Exit")
}

func (c *console) job(ctx context.Context, args []string) {
	if len(args) != 3 {
		c.o.Println("usage: job <algo> <seed-hex> <height>")

		return
	}

	alg, err := c.algo.resolve(args[0])
	if err != nil {
		c.o.Println("error:", err)

		return
	}

	height, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		c.o.Println("error: invalid height:", args[2])

		return
	}

	c.jobs++
	id := "c" + strconv.Itoa(c.jobs)

	j, err := job.New(id, alg, args[1], height, []byte(id))
	if err != nil {
		c.o.Println("error:", err)

		return
	}

	ready, err := c.m.pipeline.Submit(ctx, j)

	switch {
	case err != nil:
		c.o.Println("error:", err)
	case ready:
		c.o.Printf("job %s active\n", id)
	default:
		c.o.Printf("job %s waiting for dataset\n", id)
	}
}

func (c *console) wait(ctx context.Context, args []string) {
	if c.jobs == 0 {
		c.o.Println("no job submitted")

		return
	}

	timeout := time.Minute

	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			c.o.Println("error: invalid timeout:", args[0])

			return
		}

		timeout = d
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := "c" + strconv.Itoa(c.jobs)

	err := c.m.pipeline.WaitActive(ctx, id)
	if err != nil {
		c.o.Printf("job %s not active: %v\n", id, err)

		return
	}

	c.o.Printf("job %s active\n", id)
}

func (c *console) status() {
	active, pending := c.m.pipeline.Active(), c.m.pipeline.Pending()

	if active == nil {
		c.o.Println("active:  none")
	} else {
		c.o.Printf("active:  %s (ready=%t)\n", active, c.m.rx.IsReady(active))
	}

	if pending == nil {
		c.o.Println("pending: none")
	} else {
		c.o.Printf("pending: %s\n", pending)
	}
}
