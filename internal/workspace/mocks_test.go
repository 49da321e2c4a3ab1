package workspace_test

import (
	"context"
	"strings"
	"sync"

	"basegraph.app/relay/internal/cliexec"
)

// fakeCommandRunner replays canned output for git/hosting-CLI invocations
// keyed by the joined command line, never touching a real shell.
type fakeCommandRunner struct {
	mu       sync.Mutex
	calls    []cliexec.Command
	handlers map[string]func(cliexec.Command) ([]byte, error)
	fallback func(cliexec.Command) ([]byte, error)
}

func newFakeCommandRunner() *fakeCommandRunner {
	return &fakeCommandRunner{handlers: make(map[string]func(cliexec.Command) ([]byte, error))}
}

func (f *fakeCommandRunner) on(argsPrefix string, fn func(cliexec.Command) ([]byte, error)) {
	f.handlers[argsPrefix] = fn
}

func (f *fakeCommandRunner) Run(ctx context.Context, cmd cliexec.Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	key := cmd.Name + " " + strings.Join(cmd.Args, " ")
	for prefix, fn := range f.handlers {
		if strings.HasPrefix(key, prefix) {
			return fn(cmd)
		}
	}
	if f.fallback != nil {
		return f.fallback(cmd)
	}
	return nil, nil
}
