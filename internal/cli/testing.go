package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CLI runs rxmine in-process against a private work dir, HOME and fake
// sysfs node directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI starts with a single node holding CPUs 0-1.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	c := &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{"HOME": t.TempDir()},
	}

	c.SetTopology(map[int]string{0: "0-1"})

	return c
}

// SetTopology replaces the fake sysfs with one cpulist per node id.
func (c *CLI) SetTopology(nodes map[int]string) {
	c.t.Helper()

	root := c.t.TempDir()

	for id, cpus := range nodes {
		dir := filepath.Join(root, fmt.Sprintf("node%d", id))

		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			c.t.Fatalf("mkdir %s: %v", dir, err)
		}

		err = os.WriteFile(filepath.Join(dir, "cpulist"), []byte(cpus+"\n"), 0o644)
		if err != nil {
			c.t.Fatalf("write cpulist: %v", err)
		}
	}

	c.Env[EnvNodeDir] = root
}

// WriteConfig writes the project config file.
func (c *CLI) WriteConfig(content string) {
	c.t.Helper()

	err := os.WriteFile(filepath.Join(c.Dir, "rxmine.json"), []byte(content), 0o600)
	if err != nil {
		c.t.Fatalf("write config: %v", err)
	}
}

// Run returns stdout, stderr and the exit code. The program name and --cwd
// are prepended.
func (c *CLI) Run(args ...string) (string, string, int) {
	return c.RunWithInput("", args...)
}

// RunWithInput is Run with stdin given as a string or io.Reader, which is
// how console sessions are scripted.
func (c *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader

	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"rxmine", "--cwd", c.Dir}, args...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun returns trimmed stdout and fails the test on a non-zero exit.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail returns trimmed stderr and fails the test on a zero exit.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// AssertContains reports a missing substring without stopping the test.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains is the inverse of AssertContains.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
