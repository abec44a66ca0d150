package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	tests := []struct {
		name string
		in   []Event
		want []Event
	}{
		{
			name: "repeated writes emit once",
			in:   []Event{{"/i/1/a", OpWrite}, {"/i/1/a", OpWrite}, {"/i/1/b", OpWrite}},
			want: []Event{{"/i/1/a", OpWrite}, {"/i/1/b", OpWrite}},
		},
		{
			name: "remove after write cancels",
			in:   []Event{{"/i/1/a", OpWrite}, {"/i/1/a", OpRemove}, {"/i/1/b", OpWrite}},
			want: []Event{{"/i/1/b", OpWrite}},
		},
		{
			name: "write after remove is a write",
			in:   []Event{{"/i/1/a", OpRemove}, {"/i/1/a", OpWrite}},
			want: []Event{{"/i/1/a", OpWrite}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			for _, ev := range tt.in {
				d.Add(ev)
			}

			assert.Equal(t, tt.want, receive(t, d))
		})
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(Event{"/i/1/a", OpWrite})
	d.Stop()
	d.Stop()

	_, ok := <-d.Output()
	require.False(t, ok)

	// adding after stop is ignored
	d.Add(Event{"/i/1/b", OpWrite})
}
