package agent

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Workspace confines all tool filesystem and command activity to a single
// root directory. Tools address files by workspace-relative path; absolute
// paths and `..` escapes are rejected before any filesystem access.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir. An empty dir means the
// current working directory.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Platform returns the OS/arch the workspace runs on.
func (w *Workspace) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Resolve maps a workspace-relative path to an absolute one, rejecting
// anything that would land outside the root.
func (w *Workspace) Resolve(tool, path string) (string, error) {
	if path == "" {
		return "", NewToolError(ToolErrInvalidInput, tool, "path is required")
	}
	if filepath.IsAbs(path) {
		return "", NewToolError(ToolErrInvalidInput, tool, "absolute paths are not allowed: %s", path)
	}
	resolved := filepath.Join(w.root, filepath.Clean(path))
	rel, err := filepath.Rel(w.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewToolError(ToolErrInvalidInput, tool, "path escapes the workspace: %s", path)
	}
	return resolved, nil
}

// ReadFile returns the raw content of a workspace file.
func (w *Workspace) ReadFile(tool, path string) (string, error) {
	resolved, err := w.Resolve(tool, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ToolErrNotFound, tool, "file not found: %s", path)
		}
		return "", &ToolError{Code: ToolErrInvalidInput, Tool: tool, Message: "cannot read " + path, Cause: err}
	}
	return string(data), nil
}

// WriteFile writes content to a workspace file, creating parent directories
// as needed.
func (w *Workspace) WriteFile(tool, path, content string) error {
	resolved, err := w.Resolve(tool, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return &ToolError{Code: ToolErrInvalidInput, Tool: tool, Message: "cannot create directory for " + path, Cause: err}
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return &ToolError{Code: ToolErrInvalidInput, Tool: tool, Message: "cannot write " + path, Cause: err}
	}
	return nil
}

// DirEntry is one entry returned by ListDir.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// ListDir returns the immediate entries of a workspace directory, sorted by
// name. An empty path lists the root.
func (w *Workspace) ListDir(tool, path string) ([]DirEntry, error) {
	resolved := w.root
	if path != "" && path != "." {
		var err error
		resolved, err = w.Resolve(tool, path)
		if err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewToolError(ToolErrNotFound, tool, "directory not found: %s", path)
		}
		return nil, &ToolError{Code: ToolErrInvalidInput, Tool: tool, Message: "cannot list " + path, Cause: err}
	}
	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ExecResult holds the outcome of a shell command.
type ExecResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	TimedOut   bool
	DurationMs int64
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecCommand runs a shell command in the workspace root. The command gets
// its own process group so the whole group can be killed on timeout; no
// orphaned children survive a timed-out command.
func (w *Workspace) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	cmd.Dir = w.root
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			return result, nil
		}
		// A cancelled run is not a command outcome; surface it so the
		// caller stops instead of reporting a killed command as a result.
		if ctx.Err() == context.Canceled {
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			return nil, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &ToolError{Code: ToolErrInvalidInput, Tool: "bash_command", Message: "cannot start command", Cause: err}
	}
	return result, nil
}

// GrepMatch is one matching line found by Grep.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

// Grep walks the workspace and applies pattern to every line of every
// regular file. The .git directory and unreadable files are skipped.
// At most maxResults matches are returned, in walk order.
func (w *Workspace) Grep(ctx context.Context, pattern, path string, maxResults int) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, NewToolError(ToolErrInvalidInput, "grep_search", "invalid pattern: %v", err)
	}

	base := w.root
	if path != "" && path != "." {
		base, err = w.Resolve("grep_search", path)
		if err != nil {
			return nil, err
		}
	}
	if maxResults <= 0 {
		maxResults = 100
	}

	var matches []GrepMatch
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			rel = p
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{Path: rel, Line: i + 1, Text: line})
				if len(matches) >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		if walkErr == ctx.Err() {
			return nil, walkErr
		}
		return nil, &ToolError{Code: ToolErrInvalidInput, Tool: "grep_search", Message: "search failed", Cause: walkErr}
	}
	return matches, nil
}

// Glob returns workspace-relative paths matching a doublestar pattern
// (supports `**`), sorted lexically. An empty base searches the whole
// workspace.
func (w *Workspace) Glob(pattern, path string) ([]string, error) {
	base := w.root
	if path != "" && path != "." {
		var err error
		base, err = w.Resolve("glob_search", path)
		if err != nil {
			return nil, err
		}
	}

	matches, err := doublestar.Glob(os.DirFS(base), pattern)
	if err != nil {
		return nil, NewToolError(ToolErrInvalidInput, "glob_search", "invalid pattern: %v", err)
	}

	result := make([]string, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(base, m)
		rel, err := filepath.Rel(w.root, full)
		if err != nil {
			rel = m
		}
		result = append(result, rel)
	}
	sort.Strings(result)
	return result, nil
}
