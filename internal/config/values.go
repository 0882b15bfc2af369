package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Values is the flat key/value mapping read from a config file. It is
// populated once and treated as read-only afterwards.
type Values map[string]string

// Lookup returns the value stored under key and whether it was present.
func (v Values) Lookup(key string) (string, bool) {
	value, ok := v[key]
	return value, ok
}

// ReadFile loads a config file. Files ending in .yaml or .yml are read as a
// flat YAML mapping; anything else is treated as shell-style KEY=value lines.
func ReadFile(path string) (Values, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(f)
	default:
		return ParseEnv(f)
	}
}

// ParseEnv parses shell-style KEY=value lines. Blank lines, # comments and
// lines without '=' are ignored, values may be single or double quoted and an
// optional "export " prefix is accepted. Values are taken literally: a '$' is
// never expanded.
func ParseEnv(r io.Reader) (Values, error) {
	var (
		kept     strings.Builder
		literals = map[string]string{}
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		if strings.Contains(line, "$") {
			key, value := literalValue(line)
			literals[key] = value
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}

	parsed, err := godotenv.Parse(strings.NewReader(kept.String()))
	if err != nil {
		return nil, fmt.Errorf("parse env file: %w", err)
	}
	for key, value := range literals {
		parsed[key] = value
	}
	return Values(parsed), nil
}

// literalValue splits line at the first '=' and strips one pair of matching
// quotes from the value.
func literalValue(line string) (string, string) {
	key, value, _ := strings.Cut(strings.TrimPrefix(line, "export "), "=")
	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	return strings.TrimSpace(key), value
}

func parseYAML(r io.Reader) (Values, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	values := Values{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return values, nil
}
