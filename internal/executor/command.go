package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/corpusmill/internal/rules"
)

// stderrTailLimit caps how much command output is kept for error reports.
const stderrTailLimit = 4096

// ExternalCommandError reports a shell command that exited non-zero.
type ExternalCommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExternalCommandError) Error() string {
	msg := fmt.Sprintf("command exited with status %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// placeholderPattern matches `{name}` placeholders. The optional leading `$`
// lets shell expansions like `${HOME}` pass through untouched.
var placeholderPattern = regexp.MustCompile(`\$?\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substitute expands a command template against an invocation. Substitutions:
// `{input}` and `{output}` are all paths space-joined, `{input2}`/`{output2}`
// pick one by 1-based position, and any bound wildcard is available by name.
// Output placeholders expand to the staged paths.
func substitute(template string, inv rules.Invocation) (string, error) {
	lookup := func(name string) (string, bool) {
		switch name {
		case "input":
			return strings.Join(inv.Inputs, " "), true
		case "output":
			return strings.Join(inv.Outputs, " "), true
		}
		if rest, ok := strings.CutPrefix(name, "input"); ok {
			if i, err := strconv.Atoi(rest); err == nil && i >= 1 && i <= len(inv.Inputs) {
				return inv.Inputs[i-1], true
			}
		}
		if rest, ok := strings.CutPrefix(name, "output"); ok {
			if i, err := strconv.Atoi(rest); err == nil && i >= 1 && i <= len(inv.Outputs) {
				return inv.Outputs[i-1], true
			}
		}
		if v, ok := inv.Wildcards[name]; ok {
			return v, true
		}
		return "", false
	}

	var badName string
	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		if strings.HasPrefix(m, "$") {
			return m
		}
		name := m[1 : len(m)-1]
		v, ok := lookup(name)
		if !ok {
			if badName == "" {
				badName = name
			}
			return m
		}
		return v
	})
	if badName != "" {
		return "", fmt.Errorf("command references %q, which is neither a wildcard nor an input/output", badName)
	}
	return expanded, nil
}

// runCommand runs one substituted command line through the shell with the
// data root as working directory. Cancelling ctx kills the process.
func (e *Executor) runCommand(ctx context.Context, cmdline string, extraEnv []string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = e.opts.Root
	cmd.Env = append(os.Environ(), extraEnv...)

	stdout := &tailBuffer{limit: stderrTailLimit}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			tail := strings.TrimSpace(stderr.String())
			if tail == "" {
				tail = strings.TrimSpace(stdout.String())
			}
			return &ExternalCommandError{Command: cmdline, ExitCode: exitErr.ExitCode(), Stderr: tail}
		}
		return fmt.Errorf("starting command: %w", err)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if excess := len(t.buf) - t.limit; excess > 0 {
		t.buf = append(t.buf[:0], t.buf[excess:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
