package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelName(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel(1)

	SetLevelName("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "[warning]")

	buf.Reset()
	SetLevelName("DEBUG")
	assert.True(t, IsDebug())
	Debugf("pct %s", "100%")
	assert.Contains(t, buf.String(), "pct 100%")
}
