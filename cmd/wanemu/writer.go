package main

import (
	"io"
	"os"

	"golang.org/x/term"

	"wanemu/internal/config"
	"wanemu/internal/report"
)

// isTerminal reports whether w is an interactive terminal. It is a variable
// so tests can force either output style.
var isTerminal = func(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		width = 80
	}
	return true, width
}

// newWriters sets up report writers based on config and env vars.
// It returns the writer and a cleanup function to close any resources.
func newWriters(cfg *config.Config, out io.Writer, plain bool) (report.Writer, func(), error) {
	cleanup := func() {}
	var console report.Writer = report.NewTextWriter(out)
	if tty, width := isTerminal(out); tty && !plain {
		console = report.NewColorWriter(out, width)
	}
	writers := []report.Writer{console}

	if cfg.Results.JSONL != "" {
		jw, err := report.NewJSONLWriter(cfg.Results.JSONL)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, jw)
		cleanup = func() { jw.Close() }
	}
	if cfg.Results.GreptimeEndpoint != "" {
		gw, err := report.NewGreptimeWriter(cfg.Results.GreptimeEndpoint, cfg.Results.GreptimeDatabase, cfg.Results.GreptimeTable)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		writers = append(writers, gw)
	}
	if len(writers) == 1 {
		return console, cleanup, nil
	}
	return report.NewMultiWriter(writers...), cleanup, nil
}
