package emulation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Process is a started background command.
type Process interface {
	Kill() error
	Wait() error
}

// Runner executes commands on the machine running the orchestrator.
type Runner interface {
	// Output runs cmd to completion and returns its STDOUT. A failure is an
	// *ExternalToolError carrying STDERR.
	Output(ctx context.Context, cmd Command) ([]byte, error)
	// Start launches cmd in the background with STDOUT and STDERR sent to out.
	Start(ctx context.Context, cmd Command, out io.Writer) (Process, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := c.Output()
	if err != nil {
		return out, &ExternalToolError{Cmd: cmd, Output: stderr.String(), Err: err}
	}
	return out, nil
}

// Start implements Runner. The process is not bound to ctx: peers run
// until the topology is torn down.
func (ExecRunner) Start(ctx context.Context, cmd Command, out io.Writer) (Process, error) {
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Stdout = out
	c.Stderr = out
	if err := c.Start(); err != nil {
		return nil, &ExternalToolError{Cmd: cmd, Err: err}
	}
	p := &execProcess{cmd: c, done: make(chan struct{})}
	go func() {
		p.err = c.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}
