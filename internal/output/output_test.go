package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusIcons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		icon  string
		text  string
	}{
		{"success", func(w *Writer) { w.Successf("indexed %d chunks", 12) }, "✅", "indexed 12 chunks"},
		{"warning", func(w *Writer) { w.Warning("vector service not configured") }, "⚠️", "vector service not configured"},
		{"error", func(w *Writer) { w.Errorf("job %d failed", 7) }, "❌", "job 7 failed"},
		{"custom", func(w *Writer) { w.Statusf("📂", "queued %s", "a.pdf") }, "📂", "queued a.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer with a buffer
			buf := &bytes.Buffer{}
			w := New(buf)

			// When
			tt.write(w)

			// Then: output contains icon and message
			assert.Contains(t, buf.String(), tt.icon)
			assert.Contains(t, buf.String(), tt.text)
		})
	}
}

func TestNew_BufferIsNotColored(t *testing.T) {
	w := New(&bytes.Buffer{})
	assert.False(t, w.Color())
}

func TestWriter_KV_AlignsLabels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.KV(Field{"Status", "SUCCESS"}, Field{"Message", ""}, Field{"ID", "3"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "  Status   SUCCESS", lines[0])
	assert.Equal(t, "  Message  -", lines[1])
	assert.Equal(t, "  ID       3", lines[2])
}

func TestWriter_Highlight(t *testing.T) {
	w := NewWithColor(&bytes.Buffer{}, false)

	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"the <em>refund</em> policy", "the **refund** policy"},
		{"<em>a</em> and <em>b</em>", "**a** and **b**"},
		{"broken <em>tag", "broken <em>tag"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Highlight(tt.in))
	}
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	require.NoError(t, w.JSON(map[string]int{"total": 2}))
	assert.JSONEq(t, `{"total":2}`, buf.String())
}

func TestWriter_Progress_PrintsProgressBar(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing progress at 60%
	w.Progress(60, "chunk")

	// Then: output contains progress indicator and message
	output := buf.String()
	assert.Contains(t, output, " 60%")
	assert.Contains(t, output, "chunk")
	assert.Equal(t, 18, strings.Count(output, "█"))
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int // number of filled characters
	}{
		{"0 percent", 0, 100, 10, 0},
		{"50 percent", 50, 100, 10, 5},
		{"100 percent", 100, 100, 10, 10},
		{"25 percent", 25, 100, 20, 5},
		{"over total", 150, 100, 10, 10},
		{"zero total", 5, 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			assert.Equal(t, tt.wantFull, strings.Count(bar, "█"))
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Newline()
	assert.Equal(t, "\n", buf.String())
}
