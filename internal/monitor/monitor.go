// Package monitor shows the progress of a running emulation and blocks
// until the operator ends the run.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"wanemu/internal/analysis"
	"wanemu/internal/logging"
)

// Mode selects how Wait blocks.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
)

// Options describe the run being watched.
type Options struct {
	Dir          string
	RunID        string
	Participants []int
	Interval     time.Duration
	Mode         Mode
}

// Interactive reports whether Wait would start the terminal UI.
func (o Options) Interactive() bool {
	switch o.Mode {
	case ModeOn:
		return true
	case ModeOff:
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// Wait blocks until the operator quits the monitor, the process receives
// SIGINT or SIGTERM, or ctx is done.
func Wait(ctx context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logging.FromContext(ctx)
	if !opts.Interactive() {
		log.Info("emulation running, press Ctrl+C to stop", "logs", opts.Dir)
		<-ctx.Done()
		return nil
	}
	defer redirectLogs(ctx, opts.Dir)()
	p := tea.NewProgram(newModel(opts), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// LogFile receives the harness's own log lines while the monitor owns the
// terminal.
const LogFile = "wanemu.log"

// redirectLogs points the context's log output at LogFile in dir, or
// discards it when the file cannot be opened. The returned func restores it.
func redirectLogs(ctx context.Context, dir string) func() {
	out, ok := logging.OutputFromContext(ctx)
	if !ok {
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return out.Redirect(io.Discard)
	}
	restore := out.Redirect(f)
	return func() {
		restore()
		f.Close()
	}
}

type scanMsg struct {
	logs []analysis.NodeLog
	err  error
}

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	baseStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("8"))
)

type model struct {
	opts     Options
	table    table.Model
	source   *analysis.NodeLog
	received int
	err      error
	updated  time.Time
}

func newModel(opts Options) model {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	cols := []table.Column{
		{Title: "NODE", Width: 6},
		{Title: "PEER ID", Width: 14},
		{Title: "PEERS", Width: 6},
		{Title: "PUBLISHED", Width: 10},
		{Title: "RECEIVED", Width: 9},
		{Title: "DELAY MS", Width: 10},
	}
	height := len(opts.Participants) + 1
	if height > 20 {
		height = 20
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(height))
	m := model{opts: opts, table: t}
	m.table.SetRows(buildRows(opts.Participants, nil))
	return m
}

func (m model) scan() tea.Cmd {
	dir := m.opts.Dir
	return func() tea.Msg {
		logs, err := analysis.ScanDir(context.Background(), dir)
		return scanMsg{logs: logs, err: err}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return m.scan() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.scan()
	case scanMsg:
		m.err = msg.err
		m.updated = time.Now()
		if msg.err == nil {
			m.source = findSource(msg.logs)
			m.received = countReceived(msg.logs, m.source)
			m.table.SetRows(buildRows(m.opts.Participants, msg.logs))
		}
		return m, m.tick()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	title := "wanemu"
	if m.opts.RunID != "" {
		title += " run " + m.opts.RunID
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(warnStyle.Render("scan failed: " + m.err.Error()))
	case m.source == nil:
		b.WriteString(warnStyle.Render("waiting for publish"))
	default:
		others := len(m.opts.Participants) - 1
		b.WriteString(okStyle.Render(fmt.Sprintf("node %d published, %d/%d received", m.source.Node, m.received, others)))
	}
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: stop emulation  ↑/↓: scroll"))
	return b.String()
}

// findSource returns the publishing log when exactly one exists.
func findSource(logs []analysis.NodeLog) *analysis.NodeLog {
	var src *analysis.NodeLog
	for i := range logs {
		if logs[i].Published == nil {
			continue
		}
		if src != nil {
			return nil
		}
		src = &logs[i]
	}
	return src
}

func countReceived(logs []analysis.NodeLog, src *analysis.NodeLog) int {
	if src == nil {
		return 0
	}
	n := 0
	for _, l := range logs {
		if l.Node != src.Node && l.Received != nil {
			n++
		}
	}
	return n
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:4] + "…" + id[len(id)-6:]
}

// buildRows lists every participant, in order, with whatever its log shows
// so far.
func buildRows(participants []int, logs []analysis.NodeLog) []table.Row {
	byNode := make(map[int]analysis.NodeLog, len(logs))
	for _, l := range logs {
		byNode[l.Node] = l
	}
	src := findSource(logs)
	rows := make([]table.Row, 0, len(participants))
	for _, id := range participants {
		l := byNode[id]
		delay := ""
		if src != nil && l.Received != nil && id != src.Node {
			delay = fmt.Sprintf("%.1f", float64(l.Received.Sub(*src.Published))/float64(time.Millisecond))
		}
		rows = append(rows, table.Row{
			strconv.Itoa(id),
			shortID(l.PeerID),
			strconv.Itoa(len(l.Peers)),
			mark(l.Published != nil),
			mark(l.Received != nil),
			delay,
		})
	}
	return rows
}
