package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix starts every environment override.
	EnvPrefix = "GOOSECI_"
)

// FileNames are the configuration files looked up in the working directory,
// in order of preference.
var FileNames = []string{
	".goose-ci.yaml",
	".goose-ci.yml",
	".goose-ci.jsonc",
	".goose-ci.json",
}

// Load builds the configuration from defaults, a file and the environment.
//
// An explicit path must exist. When path is empty the first of FileNames
// found in dir is used; no file at all is not an error. The returned string
// is the file that was loaded, empty when none was.
//
// Environment variables use the GOOSECI_ prefix; the first underscore after
// it separates the section from the field:
//
//	GOOSECI_LIVE_AGGREGATE=first       -> live.aggregate
//	GOOSECI_BOOTSTRAP_LOG_DIR=ci-logs  -> bootstrap.log_dir
//	GOOSECI_LIVE_SUITES="nova swift"   -> live.suites (split on spaces)
func Load(path, dir string) (*Config, string, error) {
	k := koanf.New(".")

	// Step 1: Locate the configuration file. An explicit --config path is
	// used as is; otherwise the working directory is searched.
	if path == "" {
		found, err := findConfigFile(dir)
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	// Step 2: Parse the file with the parser matching its extension.
	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, "", err
		}
		parser, err := parserFor(path)
		if err != nil {
			return nil, "", err
		}
		if err := k.Load(rawbytes.Provider(content), parser); err != nil {
			return nil, "", fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Step 3: Overlay GOOSECI_* variables. Later loads win in koanf, so the
	// environment overrides the file.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Step 4: Decode, fill in whatever neither source set, and validate.
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, path, nil
}

// envKeyValue maps GOOSECI_SECTION_FIELD_NAME to section.field_name.
// List-valued fields are split on whitespace.
//
// Returning an empty key tells koanf to skip the variable, which drops
// names with no field part such as GOOSECI_LIVE.
func envKeyValue(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok || section == "" || field == "" {
		return "", nil
	}

	if field == "command" || field == "suites" || strings.HasSuffix(field, "_command") {
		return section + "." + field, strings.Fields(value)
	}
	return section + "." + field, value
}

// findConfigFile returns the first known configuration file in dir.
//
// A directory carrying one of the names is skipped. An empty path with a
// nil error means no file was found, which is the common case for a bot
// workspace that relies on the defaults.
func findConfigFile(dir string) (string, error) {
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				continue
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", nil
}

// readConfigFile reads a configuration file, refusing anything that is not
// a regular file or exceeds maxConfigFileSize.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is too large (%d bytes, max %d)", path, info.Size(), maxConfigFileSize)
	}

	// The size check above runs on the open handle; the limit also covers a
	// file that grows between Stat and ReadAll.
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
