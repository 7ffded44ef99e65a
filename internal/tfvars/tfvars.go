// Package tfvars renders stage input variables into the tfvars file consumed
// by the external infra tool. Rendering is deterministic: identical inputs
// produce byte-identical files, and the file is overwritten on every run.
package tfvars

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileName is the well-known input file name inside a stage working directory.
const FileName = "terraform.tfvars"

// Var is a single resolved input variable in render order.
type Var struct {
	// Key is the variable name.
	Key string
	// Value is the resolved value; nil renders as null.
	Value any
}

// Marshal renders variables as "key = value" lines in the given order.
func Marshal(vars []Var) []byte {
	var b strings.Builder
	for _, v := range vars {
		b.WriteString(v.Key)
		b.WriteString(" = ")
		b.WriteString(encode(v.Value))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// Write materializes the variables into dir/terraform.tfvars, replacing any
// previous content. The file is a regenerable local artifact and must stay out
// of durable version control.
func Write(dir string, vars []Var) error {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, Marshal(vars), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// encode renders one value as an HCL scalar literal.
func encode(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quote(v)
	default:
		return quote(fmt.Sprintf("%v", v))
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
