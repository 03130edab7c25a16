package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/unifind/internal/status"
)

func TestCrawlModel_ProgressView(t *testing.T) {
	// Given: a model without colors
	m := newCrawlModel("alice", NoColorStyles())

	// When: a progress message arrives
	_, cmd := m.Update(progressMsg{Phase: status.PhaseInProgress, Scanned: 42, Added: 40, CurrentPath: "/home/alice/docs"})

	// Then: the view shows counters and the current path
	assert.Nil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "Indexing")
	assert.Contains(t, view, "scanned 42")
	assert.Contains(t, view, "added 40")
	assert.Contains(t, view, "/home/alice/docs")
}

func TestCrawlModel_CompleteQuits(t *testing.T) {
	m := newCrawlModel("", NoColorStyles())

	// When: the crawl completes
	_, cmd := m.Update(completeMsg{Scanned: 3, Added: 2, Skipped: 1, Duration: 2 * time.Second, Roots: []string{"/data"}})

	// Then: the program quits with a summary
	assert.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	view := m.View()
	assert.Contains(t, view, "Indexing complete")
	assert.Contains(t, view, "1 entries skipped")
	assert.Contains(t, view, "/data")
}

func TestCrawlModel_CompleteWithError(t *testing.T) {
	m := newCrawlModel("", NoColorStyles())
	m.Update(completeMsg{Err: errors.New("boom")})
	assert.Contains(t, m.View(), "Crawl failed: boom")
}

func TestCrawlModel_QuitKey(t *testing.T) {
	m := newCrawlModel("", NoColorStyles())

	// When: q is pressed
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	// Then: the view explains the crawl keeps running
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "continues in the background")
}

func TestRateMeter(t *testing.T) {
	// Given: samples one second apart
	var r rateMeter
	start := time.Now()
	r.observe(0, start)
	r.observe(100, start.Add(time.Second))

	// Then: the first rate is taken as is
	assert.InDelta(t, 100.0, r.perSecond(), 0.001)

	// When: a sample arrives too soon
	r.observe(500, start.Add(1100*time.Millisecond))

	// Then: it is ignored
	assert.InDelta(t, 100.0, r.perSecond(), 0.001)

	// When: a slower second arrives
	r.observe(150, start.Add(2*time.Second))
	assert.InDelta(t, 0.2*50+0.8*100, r.perSecond(), 0.001)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "/a/b.txt", truncatePath("/a/b.txt", 40))

	long := "/home/alice/projects/very/deep/directory/structure/report.pdf"
	got := truncatePath(long, 30)
	assert.LessOrEqual(t, len(got), 30)
	assert.Contains(t, got, "report.pdf")
	assert.Contains(t, got, ".../")
}
