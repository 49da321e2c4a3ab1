// Package feedback autodetects and runs a repository's test/lint/typecheck
// commands against a worktree, never failing the caller even when the
// commands themselves fail.
package feedback

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"basegraph.app/relay/internal/cliexec"
)

const (
	defaultTimeout = 5 * time.Minute
	maxOutputBytes = 10 * 1024 * 1024
)

// categories is checked in order; the first marker file present in the
// worktree wins for each category.
var categories = []struct {
	name     string
	detectTo func(worktree string) ([]string, bool)
}{
	{name: "test", detectTo: detectTestCommand},
	{name: "typecheck", detectTo: detectTypecheckCommand},
	{name: "lint", detectTo: detectLintCommand},
}

func detectTestCommand(dir string) ([]string, bool) {
	switch {
	case exists(dir, "pnpm-lock.yaml"):
		return []string{"pnpm", "test"}, true
	case exists(dir, "yarn.lock"):
		return []string{"yarn", "test"}, true
	case exists(dir, "bun.lockb"):
		return []string{"bun", "test"}, true
	case exists(dir, "playwright.config.ts") || exists(dir, "playwright.config.js"):
		return []string{"npx", "playwright", "test"}, true
	case exists(dir, "package.json"):
		return []string{"npm", "test"}, true
	case exists(dir, "pytest.ini") || exists(dir, "pyproject.toml"):
		return []string{"pytest"}, true
	case exists(dir, "Cargo.toml"):
		return []string{"cargo", "test"}, true
	case exists(dir, "go.mod"):
		return []string{"go", "test", "./..."}, true
	}
	return nil, false
}

func detectTypecheckCommand(dir string) ([]string, bool) {
	switch {
	case exists(dir, "tsconfig.json"):
		return []string{"npx", "tsc", "--noEmit"}, true
	case exists(dir, "go.mod"):
		return []string{"go", "vet", "./..."}, true
	}
	return nil, false
}

func detectLintCommand(dir string) ([]string, bool) {
	switch {
	case exists(dir, "biome.json"):
		return []string{"npx", "biome", "check", "."}, true
	case hasEslintConfig(dir):
		return []string{"npx", "eslint", "."}, true
	case exists(dir, "pyproject.toml"):
		return []string{"ruff", "check", "."}, true
	case exists(dir, "go.mod"):
		return []string{"golangci-lint", "run"}, true
	}
	return nil, false
}

func hasEslintConfig(dir string) bool {
	for _, name := range []string{".eslintrc", ".eslintrc.json", ".eslintrc.js", ".eslintrc.cjs", ".eslintrc.yaml", ".eslintrc.yml"} {
		if exists(dir, name) {
			return true
		}
	}
	return false
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// Result is one command's outcome.
type Result struct {
	Category string `json:"category"`
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	TimedOut bool   `json:"timed_out"`
}

// Report is the feedback runner's overall verdict.
type Report struct {
	Passed      bool     `json:"passed"`
	Results     []Result `json:"results"`
	Summary     string   `json:"summary"`
	FailedTests []string `json:"failedTests,omitempty"`
}

// Runner autodetects and executes feedback commands in a worktree.
type Runner struct {
	cmdRunner cliexec.CommandRunner
	timeout   time.Duration
}

func New(runner cliexec.CommandRunner, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{cmdRunner: runner, timeout: timeout}
}

// Run executes caller-supplied custom commands first, then the autodetected
// test/typecheck/lint commands for whichever marker files are present. It
// never returns an error: every failure mode is reflected in Report.Passed.
func (r *Runner) Run(ctx context.Context, worktree string, customCommands []string) Report {
	var results []Result

	for _, cmd := range customCommands {
		results = append(results, r.runShell(ctx, worktree, "custom", cmd))
	}

	for _, cat := range categories {
		args, ok := cat.detectTo(worktree)
		if !ok {
			continue
		}
		results = append(results, r.runArgs(ctx, worktree, cat.name, args))
	}

	passed := true
	for _, res := range results {
		if res.ExitCode != 0 || res.TimedOut {
			passed = false
		}
	}

	return Report{
		Passed:  passed,
		Results: results,
		Summary: summarize(results),
	}
}

func (r *Runner) runArgs(ctx context.Context, worktree, category string, args []string) Result {
	cmdStr := joinArgs(args)
	return r.run(ctx, worktree, category, args[0], args[1:], cmdStr)
}

func (r *Runner) runShell(ctx context.Context, worktree, category, shellCmd string) Result {
	return r.run(ctx, worktree, category, "sh", []string{"-c", shellCmd}, shellCmd)
}

func (r *Runner) run(ctx context.Context, worktree, category, name string, args []string, display string) Result {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.cmdRunner.Run(runCtx, cliexec.Command{Name: name, Args: args, Dir: worktree})

	timedOut := runCtx.Err() == context.DeadlineExceeded
	output := string(out)
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes]
	}

	exitCode := 0
	if err != nil {
		exitCode = 1
	}

	return Result{
		Category: category,
		Command:  display,
		ExitCode: exitCode,
		Output:   output,
		TimedOut: timedOut,
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func summarize(results []Result) string {
	if len(results) == 0 {
		return "no feedback commands detected"
	}
	failed := 0
	for _, r := range results {
		if r.ExitCode != 0 || r.TimedOut {
			failed++
		}
	}
	if failed == 0 {
		return "all feedback commands passed"
	}
	return "failed commands present"
}
