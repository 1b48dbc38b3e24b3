package monitoring

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op; the previous logger must not be reached.
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugf_RespectsVerbose(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetVerbose(false)
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})

	SetVerbose(false)
	Debugf("hidden %d", 1)
	assert.Empty(t, lines)

	SetVerbose(true)
	Debugf("shown %d", 2)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[debug] "))
}

func TestSetLevel(t *testing.T) {
	defer SetVerbose(false)

	tests := []struct {
		level string
		want  bool
	}{
		{"DEBUG", true},
		{" debug ", true},
		{"INFO", false},
		{"", false},
		{"WARNING", false},
	}
	for _, tt := range tests {
		SetLevel(tt.level)
		assert.Equal(t, tt.want, Verbose(), "level %q", tt.level)
	}
}

func TestTeeToFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "station.log")
	closer, err := TeeToFile(path)
	require.NoError(t, err)

	log.Print("tee check")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("tee check")))
}
