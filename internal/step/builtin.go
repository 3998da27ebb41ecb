package step

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joss/taskpilot/internal/exec"
	"github.com/joss/taskpilot/internal/logging"
)

// Builtin executes the standard task kinds against a root directory.
// Paths in parameters are resolved relative to Root and must stay
// inside it.
type Builtin struct {
	Root   string
	runner exec.Runner
	guard  *Guard
	logger *logging.Logger
}

// BuiltinOption configures a Builtin runner.
type BuiltinOption func(*Builtin)

// WithExecRunner sets a custom command runner (for testing).
func WithExecRunner(r exec.Runner) BuiltinOption {
	return func(b *Builtin) { b.runner = r }
}

// WithGuard sets a custom command guard.
func WithGuard(g *Guard) BuiltinOption {
	return func(b *Builtin) { b.guard = g }
}

// NewBuiltin creates the builtin step runner rooted at dir.
func NewBuiltin(root string, opts ...BuiltinOption) *Builtin {
	b := &Builtin{
		Root:   root,
		runner: exec.NewOSRunner(),
		guard:  NewGuard(),
		logger: logging.New("step"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run dispatches on the task kind.
func (b *Builtin) Run(ctx context.Context, task Request) (string, error) {
	switch task.Kind {
	case "read-file":
		return b.readFile(task)
	case "write-file":
		return b.writeFile(task)
	case "list-dir":
		return b.listDir(task)
	case "run-command":
		return b.runCommand(ctx, task)
	case "analyze-code":
		return b.analyzeCode(ctx, task)
	default:
		return "", fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}

// resolve joins a parameter path onto the root and rejects escapes.
func (b *Builtin) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("missing path parameter")
	}
	full := filepath.Join(b.Root, p)
	rel, err := filepath.Rel(b.Root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", p)
	}
	return full, nil
}

func (b *Builtin) readFile(task Request) (string, error) {
	path, err := b.resolve(task.Parameters["path"])
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", task.Parameters["path"], err)
	}
	return string(data), nil
}

func (b *Builtin) writeFile(task Request) (string, error) {
	path, err := b.resolve(task.Parameters["path"])
	if err != nil {
		return "", err
	}
	content := task.Parameters["content"]
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", task.Parameters["path"], err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", task.Parameters["path"], err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), task.Parameters["path"]), nil
}

func (b *Builtin) listDir(task Request) (string, error) {
	p := task.Parameters["path"]
	if p == "" {
		p = "."
	}
	path, err := b.resolve(p)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (b *Builtin) runCommand(ctx context.Context, task Request) (string, error) {
	command := task.Parameters["command"]
	if command == "" {
		return "", fmt.Errorf("missing command parameter")
	}

	risk := b.guard.Analyze(command)
	switch risk.Level {
	case RiskBlocked:
		b.logger.WithTask(task.TaskID).Warn("command_blocked", map[string]interface{}{
			"command": command,
			"reason":  risk.Reason,
		}, nil)
		return "", fmt.Errorf("%s (suggestion: %s)", risk.Reason, risk.Alternative)
	case RiskWarning:
		b.logger.WithTask(task.TaskID).Warn("command_risky", map[string]interface{}{
			"command": command,
			"reason":  risk.Reason,
		}, nil)
	}

	out, err := b.runner.RunInDir(ctx, b.Root, "sh", "-c", command)
	if err != nil {
		return "", fmt.Errorf("command failed: %w\n%s", err, out)
	}
	return string(out), nil
}

// analyzeCode produces a lightweight summary of a file or tree:
// per-extension file and line counts plus TODO/FIXME markers.
func (b *Builtin) analyzeCode(ctx context.Context, task Request) (string, error) {
	p := task.Parameters["path"]
	if p == "" {
		p = "."
	}
	root, err := b.resolve(p)
	if err != nil {
		return "", err
	}

	files := map[string]int{}
	lines := map[string]int{}
	var todos []string

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext == "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		n := 0
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			n++
			line := scanner.Text()
			if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
				rel, _ := filepath.Rel(b.Root, path)
				todos = append(todos, fmt.Sprintf("%s:%d: %s", rel, n, strings.TrimSpace(line)))
			}
		}
		files[ext]++
		lines[ext] += n
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("analyze %s: %w", p, walkErr)
	}

	exts := make([]string, 0, len(files))
	for ext := range files {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis of %s\n", p)
	for _, ext := range exts {
		fmt.Fprintf(&sb, "  %-8s %4d files %7d lines\n", ext, files[ext], lines[ext])
	}
	if len(todos) > 0 {
		fmt.Fprintf(&sb, "Markers (%d):\n", len(todos))
		max := len(todos)
		if max > 20 {
			max = 20
		}
		for _, t := range todos[:max] {
			fmt.Fprintf(&sb, "  %s\n", t)
		}
	}
	return sb.String(), nil
}
