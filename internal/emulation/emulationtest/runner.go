package emulationtest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"wanemu/internal/emulation"
)

// Runner is a fake emulation.Runner. Outputs maps a rendered command to the
// STDOUT it produces; Errors maps a rendered command to a failure.
type Runner struct {
	mu      sync.Mutex
	Outputs map[string]string
	Errors  map[string]error
	Ran     []string
	Started []string
	Procs   []*Process
}

var _ emulation.Runner = (*Runner)(nil)

// Output implements emulation.Runner.
func (r *Runner) Output(ctx context.Context, cmd emulation.Command) ([]byte, error) {
	key := cmd.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ran = append(r.Ran, key)
	if err, ok := r.Errors[key]; ok {
		return nil, &emulation.ExternalToolError{Cmd: cmd, Output: "exit status 1", Err: err}
	}
	return []byte(r.Outputs[key]), nil
}

// Start implements emulation.Runner.
func (r *Runner) Start(ctx context.Context, cmd emulation.Command, out io.Writer) (emulation.Process, error) {
	key := cmd.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.Errors[key]; ok {
		return nil, err
	}
	r.Started = append(r.Started, key)
	if s, ok := r.Outputs[key]; ok {
		fmt.Fprint(out, s)
	}
	p := &Process{}
	r.Procs = append(r.Procs, p)
	return p, nil
}

// Process is a fake emulation.Process.
type Process struct {
	Killed bool
}

// Kill implements emulation.Process.
func (p *Process) Kill() error {
	p.Killed = true
	return nil
}

// Wait implements emulation.Process.
func (p *Process) Wait() error { return nil }
