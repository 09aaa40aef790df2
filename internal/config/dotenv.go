package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadDotEnv exports KEY=VALUE pairs from path so RCSTATION_* settings can
// live next to the binary. Variables already set in the environment win. A
// missing file is not an error.
func LoadDotEnv(path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open env file: %w", err)
	}

	vars, err := parseDotEnv(data)
	if err != nil {
		return 0, fmt.Errorf("parse env file %s: %w", path, err)
	}
	set := 0
	for key, val := range vars {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return set, fmt.Errorf("set %s: %w", key, err)
		}
		set++
	}
	return set, nil
}

// parseDotEnv uses viper's env codec; keys come back lower-cased and are
// restored to the usual upper-case spelling.
func parseDotEnv(data []byte) (map[string]string, error) {
	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		out[strings.ToUpper(key)] = v.GetString(key)
	}
	return out, nil
}
