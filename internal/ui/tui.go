package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/unifind/internal/status"
)

// TUIRenderer shows a live spinner line using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *crawlModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newCrawlModel(cfg.Title, GetStyles(cfg.NoColor)),
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithContext(ctx))

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}
	r.program.Quit()

	// An unresponsive program must not hang the process on Ctrl+C.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type progressMsg ProgressEvent
type completeMsg CompletionStats

// crawlModel is the bubbletea model for a running crawl.
type crawlModel struct {
	title    string
	styles   Styles
	spinner  spinner.Model
	event    ProgressEvent
	rate     rateMeter
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
}

func newCrawlModel(title string, styles Styles) *crawlModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))
	return &crawlModel{title: title, styles: styles, spinner: s, width: 80}
}

// Init implements tea.Model.
func (m *crawlModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *crawlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case progressMsg:
		m.event = ProgressEvent(msg)
		m.rate.observe(m.event.Scanned, time.Now())
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *crawlModel) View() string {
	if m.quitting {
		return "Stopped watching; the crawl continues in the background.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	parts := []string{
		m.styles.Header.Render(phaseLabel(m.event.Phase)),
		fmt.Sprintf("%s %s", m.styles.Label.Render("scanned"), m.styles.Value.Render(fmt.Sprint(m.event.Scanned))),
		fmt.Sprintf("%s %s", m.styles.Label.Render("added"), m.styles.Value.Render(fmt.Sprint(m.event.Added))),
	}
	if r := m.rate.perSecond(); r > 0 {
		parts = append(parts, m.styles.Label.Render(fmt.Sprintf("%.0f/s", r)))
	}
	line := m.spinner.View() + " "
	if m.title != "" {
		line += m.styles.Dim.Render(m.title) + " "
	}
	line += strings.Join(parts, m.styles.Dim.Render("  •  "))

	if m.event.CurrentPath != "" {
		line += "\n  " + m.styles.Dim.Render(truncatePath(m.event.CurrentPath, m.width-4))
	}
	return line + "\n"
}

func (m *crawlModel) renderComplete() string {
	if m.stats.Err != nil {
		return m.styles.Error.Render(fmt.Sprintf("✗ Crawl failed: %v", m.stats.Err)) + "\n"
	}

	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Scanned: "), m.styles.Value.Render(fmt.Sprint(m.stats.Scanned))),
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Added:   "), m.styles.Value.Render(fmt.Sprint(m.stats.Added))),
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Duration:"), m.styles.Value.Render(formatDuration(m.stats.Duration))),
	}
	if m.stats.Skipped > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d entries skipped", m.stats.Skipped)))
	}
	for _, root := range m.stats.Roots {
		lines = append(lines, m.styles.Dim.Render("  "+root))
	}

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	return m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")) + "\n"
}

func phaseLabel(p status.Phase) string {
	switch p {
	case status.PhaseStarting:
		return "Starting"
	case status.PhaseInProgress:
		return "Indexing"
	case status.PhaseCompleted:
		return "Finishing"
	default:
		return "Waiting"
	}
}

// rateMeter is an exponentially smoothed entries-per-second meter.
type rateMeter struct {
	lastCount int
	lastAt    time.Time
	rate      float64
}

func (r *rateMeter) observe(count int, now time.Time) {
	if r.lastAt.IsZero() {
		r.lastCount, r.lastAt = count, now
		return
	}
	elapsed := now.Sub(r.lastAt)
	if elapsed < 500*time.Millisecond {
		return
	}
	sample := float64(count-r.lastCount) / elapsed.Seconds()
	if sample < 0 {
		sample = 0
	}
	if r.rate == 0 {
		r.rate = sample
	} else {
		r.rate = 0.2*sample + 0.8*r.rate
	}
	r.lastCount, r.lastAt = count, now
}

func (r *rateMeter) perSecond() float64 {
	return r.rate
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// truncatePath shortens a path to maxLen, keeping the file name.
func truncatePath(path string, maxLen int) string {
	if maxLen < 8 {
		maxLen = 8
	}
	if len(path) <= maxLen {
		return path
	}
	idx := strings.LastIndexAny(path, `/\`)
	name := path[idx+1:]
	if len(name)+4 >= maxLen {
		return "..." + name[len(name)-(maxLen-3):]
	}
	keep := maxLen - len(name) - 4
	return path[:keep] + ".../" + name
}

var _ Renderer = (*TUIRenderer)(nil)
