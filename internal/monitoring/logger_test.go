package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("pipeline: run %s", "run_x")
	assert.Equal(t, "pipeline: run %s", got)

	// Nil installs a no-op that must not call back or panic.
	got = ""
	SetLogger(nil)
	Logf("muted")
	assert.Empty(t, got)
}

func TestLogfDefault(t *testing.T) {
	require.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("message: %s", "value") })
}
