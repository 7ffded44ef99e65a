// Package envfile contains helpers for merging variables from multiple
// sources and for maintaining the local .env export file.
package envfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Vars represents a simple string-to-string map of variables.
type Vars map[string]string

// Merge merges several Vars maps into one, later maps overriding earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// ParseInlineVars parses a comma-separated k=v list (e.g. "A=1,B=2") into Vars.
func ParseInlineVars(s string) (Vars, error) {
	out := make(Vars)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid inline var %q, expected key=value", part)
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			return nil, fmt.Errorf("empty key in inline var %q", part)
		}
		out[key] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// Read loads a .env-style file into Vars. A missing file yields an empty map,
// matching the first run against a fresh working tree.
func Read(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Vars), nil
		}
		return nil, fmt.Errorf("open env file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	envMap, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env file %q: %w", path, err)
	}
	out := make(Vars, len(envMap))
	for k, v := range envMap {
		out[k] = v
	}
	return out, nil
}

// Write merges values over the existing file content and rewrites the file.
// Keys listed in preferred come first in that order; remaining keys follow
// sorted, so unrelated user entries survive regeneration. Writing an empty
// merge result is a no-op.
func Write(path string, preferred []string, values Vars) error {
	existing, err := Read(path)
	if err != nil {
		return err
	}
	merged := Merge(existing, values)
	if len(merged) == 0 {
		return nil
	}

	front := make(map[string]bool, len(preferred))
	var lines []string
	for _, key := range preferred {
		front[key] = true
		if v, ok := merged[key]; ok {
			lines = append(lines, key+"="+v)
		}
	}

	rest := make([]string, 0, len(merged))
	for key := range merged {
		if !front[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		lines = append(lines, key+"="+merged[key])
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write env file %q: %w", path, err)
	}
	return nil
}
