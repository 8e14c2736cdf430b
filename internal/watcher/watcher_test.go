package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"create", OpCreate, "CREATE"},
		{"modify", OpModify, "MODIFY"},
		{"delete", OpDelete, "DELETE"},
		{"rename", OpRename, "RENAME"},
		{"ignore change", OpIgnoreChange, "IGNORE_CHANGE"},
		{"unknown", Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOperation_Removes(t *testing.T) {
	assert.True(t, OpDelete.removes())
	assert.True(t, OpRename.removes())
	assert.False(t, OpCreate.removes())
	assert.False(t, OpModify.removes())
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only the debounce set
	opts := Options{Debounce: time.Second}.WithDefaults()

	// Then: explicit values survive and zero values take defaults
	assert.Equal(t, time.Second, opts.Debounce)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 100, opts.EventBufferSize)
	assert.False(t, opts.ForcePolling)

	assert.Equal(t, 500*time.Millisecond, Options{}.WithDefaults().Debounce)
}
