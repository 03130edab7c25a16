package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/unifind/internal/status"
)

func TestPlainRenderer_ThrottlesSamePhase(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))
	require.NoError(t, r.Start(context.Background()))

	// When: sending several samples in the same phase
	r.UpdateProgress(ProgressEvent{Phase: status.PhaseInProgress, Scanned: 1, Added: 1})
	r.UpdateProgress(ProgressEvent{Phase: status.PhaseInProgress, Scanned: 2, Added: 2})
	r.UpdateProgress(ProgressEvent{Phase: status.PhaseCompleted, Scanned: 3, Added: 3, CurrentPath: "/home/a"})

	// Then: only the first sample and the phase change are printed
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[in_progress] scanned 1, added 1", lines[0])
	assert.Equal(t, "[completed] scanned 3, added 3 - /home/a", lines[1])
	assert.NoError(t, r.Stop())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When: completing a crawl with skips
	r.Complete(CompletionStats{Scanned: 10, Added: 8, Excluded: 2, Skipped: 1, Duration: 1500 * time.Millisecond})

	// Then: the summary is printed
	assert.Equal(t, "Complete: 10 scanned, 8 added, 2 excluded in 2s (1 skipped)\n", buf.String())
}

func TestPlainRenderer_CompleteWithError(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When: the crawl failed
	r.Complete(CompletionStats{Duration: 20 * time.Millisecond, Err: errors.New("root not readable")})

	// Then: the error is reported
	assert.Equal(t, "Crawl failed after 20ms: root not readable\n", buf.String())
}
