package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, s.Compiler.Timeout)
	assert.Equal(t, []string{"DOM"}, s.Compiler.Lib)
	assert.Equal(t, MinifierTerser, s.Minifier.Kind)
	assert.True(t, s.Build.Compact)
	assert.True(t, s.Build.HoistDefineProperty)
	assert.False(t, s.Build.CommonJSInterop)
	assert.Equal(t, 1, s.Build.Parallel)
	assert.Equal(t, DefaultFormats, s.Build.DefaultFormats)
	assert.Equal(t, DefaultTestFormat, s.Build.TestFormat)
	assert.Equal(t, 200*time.Millisecond, s.Build.DevDebounce)
}

func TestLoadSettingsEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tsbundle.yaml")
	require.NoError(t, os.WriteFile(file, []byte("minifier:\n  kind: esbuild\nbuild:\n  parallel: 4\n"), 0o644))

	t.Setenv("TSBUNDLE_BUILD_COMPACT", "false")
	t.Setenv("TSBUNDLE_COMPILER_TIMEOUT", "30s")

	s, err := LoadSettings(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, MinifierEsbuild, s.Minifier.Kind)
	assert.Equal(t, 4, s.Build.Parallel)
	assert.False(t, s.Build.Compact)
	assert.Equal(t, 30*time.Second, s.Compiler.Timeout)
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	_, err := LoadSettings(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	valid := func() Settings {
		return Settings{
			Compiler: CompilerSettings{Timeout: time.Minute},
			Minifier: MinifierSettings{Kind: MinifierTerser, Timeout: time.Minute},
			Build: BuildSettings{
				Parallel:       1,
				DefaultFormats: DefaultFormats,
				TestFormat:     DefaultTestFormat,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		errMsg string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero compiler timeout", func(s *Settings) { s.Compiler.Timeout = 0 }, "compiler.timeout must be positive"},
		{"negative minifier timeout", func(s *Settings) { s.Minifier.Timeout = -time.Second }, "minifier.timeout must be positive"},
		{"unknown minifier", func(s *Settings) { s.Minifier.Kind = "uglify" }, "minifier.kind"},
		{"zero parallel", func(s *Settings) { s.Build.Parallel = 0 }, "build.parallel"},
		{"no default formats", func(s *Settings) { s.Build.DefaultFormats = nil }, "build.default_formats"},
		{"bad default format", func(s *Settings) { s.Build.DefaultFormats = []string{"es2020.xyz"} }, "invalid format"},
		{"bad test format", func(s *Settings) { s.Build.TestFormat = "min.cjs" }, "invalid format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
