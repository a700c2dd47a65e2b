package loader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external compiler. Loaders wrapping command line tools
// accept Runner so they can be exercised without the tool installed.
type Runner interface {
	Run(ctx context.Context, dir, stdin, name string, args ...string) (string, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, stdin, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(stdin) > 0 {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) == 0 {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s: %w\n%s", name, err, msg)
	}
	return stdout.String(), nil
}

// LookupTool finds executable for loader. Configured path takes precedence
// over bin name. Failure is reported as MissingCompilerError naming pkg.
func LookupTool(loader, pkg, configured, bin string) (string, error) {
	name := bin
	if len(configured) > 0 {
		name = configured
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &MissingCompilerError{Loader: loader, Package: pkg, Err: err}
	}
	return path, nil
}
