package util

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withInput(t *testing.T, input string) *bytes.Buffer {
	t.Helper()
	out := &bytes.Buffer{}
	oldIn, oldOut := Stdin, Stdout
	Stdin, Stdout = strings.NewReader(input), out
	t.Cleanup(func() { Stdin, Stdout = oldIn, oldOut })
	return out
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
	}{
		{"yes", "y\n", false, true},
		{"full yes", "YES\n", false, true},
		{"no", "n\n", true, false},
		{"empty uses default yes", "\n", true, true},
		{"empty uses default no", "\n", false, false},
		{"no trailing newline", "y", false, true},
		{"anything else is no", "maybe\n", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := withInput(t, tt.input)
			got, err := Confirm("Continue?", tt.defaultYes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Continue?")
		})
	}
}

func TestConfirmEOF(t *testing.T) {
	withInput(t, "")
	_, err := Confirm("Continue?", true)
	assert.ErrorIs(t, err, io.EOF)
}

func TestChoose(t *testing.T) {
	out := withInput(t, "huge\nMinor\n")
	got, err := Choose("Increment", []string{"patch", "minor", "major"}, "patch")
	require.NoError(t, err)
	assert.Equal(t, "minor", got)
	assert.Contains(t, out.String(), "Please answer one of: patch, minor, major")

	withInput(t, "\n")
	got, err = Choose("Increment", []string{"patch", "minor"}, "patch")
	require.NoError(t, err)
	assert.Equal(t, "patch", got)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "error TS2304", FirstLine("\n  error TS2304  \nmore"))
	assert.Equal(t, "", FirstLine("\n \n"))
}
