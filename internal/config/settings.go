package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Minifier kinds accepted by minifier.kind.
const (
	MinifierTerser  = "terser"
	MinifierEsbuild = "esbuild"
)

// Settings configures the tool itself, as opposed to the packages it builds.
type Settings struct {
	Compiler CompilerSettings `mapstructure:"compiler"`
	Minifier MinifierSettings `mapstructure:"minifier"`
	Build    BuildSettings    `mapstructure:"build"`
	Debug    bool             `mapstructure:"debug"`
}

// CompilerSettings contains TypeScript compiler settings
type CompilerSettings struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	Lib     []string      `mapstructure:"lib"`
}

// MinifierSettings contains bundle minifier settings
type MinifierSettings struct {
	Kind    string        `mapstructure:"kind"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	Args    []string      `mapstructure:"args"`
}

// BuildSettings contains pipeline settings
type BuildSettings struct {
	TempDir             string        `mapstructure:"temp_dir"`
	Compact             bool          `mapstructure:"compact"`
	HoistDefineProperty bool          `mapstructure:"hoist_define_property"`
	CommonJSInterop     bool          `mapstructure:"commonjs_interop"`
	Parallel            int           `mapstructure:"parallel"`
	DefaultFormats      []string      `mapstructure:"default_formats"`
	TestFormat          string        `mapstructure:"test_format"`
	DevDebounce         time.Duration `mapstructure:"dev_debounce"`
}

// LoadSettings reads settings into v from an optional tsbundle.yaml (or
// configFile when set), TSBUNDLE_* environment variables and a .env file.
func LoadSettings(v *viper.Viper, configFile string) (*Settings, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tsbundle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.tsbundle")
		}
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("TSBUNDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &s, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	for _, location := range []string{".env", ".env.local"} {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}
	return fmt.Errorf("no .env file found")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compiler.path", "")
	v.SetDefault("compiler.timeout", "5m")
	v.SetDefault("compiler.lib", []string{"DOM"})

	v.SetDefault("minifier.kind", MinifierTerser)
	v.SetDefault("minifier.path", "")
	v.SetDefault("minifier.timeout", "2m")
	v.SetDefault("minifier.args", []string{})

	v.SetDefault("build.temp_dir", "")
	v.SetDefault("build.compact", true)
	v.SetDefault("build.hoist_define_property", true)
	v.SetDefault("build.commonjs_interop", false)
	v.SetDefault("build.parallel", 1)
	v.SetDefault("build.default_formats", DefaultFormats)
	v.SetDefault("build.test_format", DefaultTestFormat)
	v.SetDefault("build.dev_debounce", "200ms")

	v.SetDefault("debug", false)
}

// Validate checks the settings
func (s *Settings) Validate() error {
	if s.Compiler.Timeout <= 0 {
		return fmt.Errorf("compiler.timeout must be positive")
	}
	if s.Minifier.Timeout <= 0 {
		return fmt.Errorf("minifier.timeout must be positive")
	}
	if s.Minifier.Kind != MinifierTerser && s.Minifier.Kind != MinifierEsbuild {
		return fmt.Errorf("minifier.kind must be '%s' or '%s'", MinifierTerser, MinifierEsbuild)
	}
	if s.Build.Parallel < 1 {
		return fmt.Errorf("build.parallel must be at least 1")
	}
	if s.Build.DevDebounce < 0 {
		return fmt.Errorf("build.dev_debounce cannot be negative")
	}
	if len(s.Build.DefaultFormats) == 0 {
		return fmt.Errorf("build.default_formats cannot be empty")
	}
	for _, f := range append(append([]string(nil), s.Build.DefaultFormats...), s.Build.TestFormat) {
		if _, err := parseFormat(f); err != nil {
			return err
		}
	}
	return nil
}
