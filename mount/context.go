// Package mount provides the execution contexts, bind-mount topology, and
// overlay scoping used to stage upgrade transactions.
//
// An execution context abstracts "run a command with these bind mounts and
// environment variables, against this root": either directly on the host
// or inside a systemd-nspawn container rooted at the target userspace.
package mount

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/ascent-project/ascent/iox"
)

// CallOpts carries per-invocation options.
type CallOpts struct {
	// Env holds environment overrides applied on top of the inherited
	// environment (host context) or set inside the container (nspawn).
	Env map[string]string
}

// CallResult is the captured output of a finished process.
type CallResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError reports a process that started but exited non-zero. The
// captured output is preserved for failure classification.
type ExitError struct {
	Cmd    []string
	Result *CallResult
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %s exited with code %d", e.Cmd[0], e.Result.ExitCode)
}

// Context is an execution environment scoped to a root directory. File
// paths given to the file operations are interpreted relative to that
// root, exactly as the processes run through Call will see them.
type Context interface {
	// Call runs the command to completion and returns its captured
	// output. A non-zero exit is returned as *ExitError with the result
	// attached; a process that could not be started at all returns a
	// plain error.
	Call(ctx context.Context, cmd []string, opts CallOpts) (*CallResult, error)

	// FullPath resolves a context path to the host path backing it.
	FullPath(p string) string
	// MakeDirs creates the directory and any missing parents.
	MakeDirs(p string) error
	// WriteFile writes data to a context path, truncating existing content.
	WriteFile(p string, data []byte) error
	// ReadFile reads a context path.
	ReadFile(p string) ([]byte, error)
	// CopyFrom copies a file from a context path to a host path.
	CopyFrom(src, dst string) error
	// CopyTreeFrom copies a directory tree from a context path to a host path.
	CopyTreeFrom(src, dst string) error
}

// HostContext runs commands directly on the host without isolation,
// against an arbitrary base directory (usually "/").
type HostContext struct {
	BaseDir string
}

// NewHostContext returns a host context rooted at base. An empty base
// means the real root.
func NewHostContext(base string) *HostContext {
	if base == "" {
		base = "/"
	}
	return &HostContext{BaseDir: base}
}

func (c *HostContext) Call(ctx context.Context, cmd []string, opts CallOpts) (*CallResult, error) {
	return run(ctx, cmd, environWith(opts.Env))
}

func (c *HostContext) FullPath(p string) string       { return resolve(c.BaseDir, p) }
func (c *HostContext) MakeDirs(p string) error        { return os.MkdirAll(c.FullPath(p), 0o755) }
func (c *HostContext) WriteFile(p string, data []byte) error {
	return os.WriteFile(c.FullPath(p), data, 0o644)
}
func (c *HostContext) ReadFile(p string) ([]byte, error) { return os.ReadFile(c.FullPath(p)) }
func (c *HostContext) CopyFrom(src, dst string) error {
	return iox.CopyFile(c.FullPath(src), dst)
}
func (c *HostContext) CopyTreeFrom(src, dst string) error {
	return iox.CopyTree(c.FullPath(src), dst)
}

// NspawnContext runs commands inside a systemd-nspawn container rooted at
// the target userspace, with an ordered set of bind mounts. Bind order is
// preserved: nspawn applies them sequentially and later, more specific
// targets must not be shadowed by earlier ones.
type NspawnContext struct {
	BaseDir string
	Binds   []BindMount
}

// NewNspawnContext returns an isolated context rooted at base with the
// given bind mounts.
func NewNspawnContext(base string, binds []BindMount) *NspawnContext {
	return &NspawnContext{BaseDir: base, Binds: binds}
}

func (c *NspawnContext) Call(ctx context.Context, cmd []string, opts CallOpts) (*CallResult, error) {
	return run(ctx, c.argv(cmd, opts.Env), os.Environ())
}

// argv assembles the full systemd-nspawn invocation. Environment
// overrides are passed with --setenv so they reach the containerized
// process rather than nspawn itself.
func (c *NspawnContext) argv(cmd []string, env map[string]string) []string {
	argv := []string{"systemd-nspawn", "--register=no", "--quiet", "-D", c.BaseDir}
	for _, b := range c.Binds {
		argv = append(argv, "--bind", b.String())
	}
	for _, k := range sortedKeys(env) {
		argv = append(argv, "--setenv", k+"="+env[k])
	}
	return append(argv, cmd...)
}

func (c *NspawnContext) FullPath(p string) string       { return resolve(c.BaseDir, p) }
func (c *NspawnContext) MakeDirs(p string) error        { return os.MkdirAll(c.FullPath(p), 0o755) }
func (c *NspawnContext) WriteFile(p string, data []byte) error {
	return os.WriteFile(c.FullPath(p), data, 0o644)
}
func (c *NspawnContext) ReadFile(p string) ([]byte, error) { return os.ReadFile(c.FullPath(p)) }
func (c *NspawnContext) CopyFrom(src, dst string) error {
	return iox.CopyFile(c.FullPath(src), dst)
}
func (c *NspawnContext) CopyTreeFrom(src, dst string) error {
	return iox.CopyTree(c.FullPath(src), dst)
}

// run executes argv and captures stdout/stderr. Non-zero exits come back
// as *ExitError carrying the captured result; launch failures come back
// as a plain wrapped error.
func run(ctx context.Context, argv []string, env []string) (*CallResult, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CallResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			} else {
				result.ExitCode = -1
			}
			return result, &ExitError{Cmd: argv, Result: result}
		}
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	return result, nil
}

// environWith layers overrides on top of the inherited environment,
// keeping the last occurrence of each key.
func environWith(env map[string]string) []string {
	merged := os.Environ()
	for _, k := range sortedKeys(env) {
		merged = append(merged, k+"="+env[k])
	}

	seen := make(map[string]int, len(merged))
	for i, entry := range merged {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range merged {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolve(base, p string) string {
	return filepath.Join(base, strings.TrimPrefix(p, "/"))
}
