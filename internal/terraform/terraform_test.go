package terraform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringify(t *testing.T) {
	assert.Equal(t, "rg-dbgenai-x1", stringify("rg-dbgenai-x1"))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "42", stringify(float64(42)))
	assert.Equal(t, "0.5", stringify(0.5))
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, `["a","b"]`, stringify([]any{"a", "b"}))
}

func TestToolErrorMessage(t *testing.T) {
	err := &ToolError{
		Args:       []string{"-chdir=terraform/01_resource_group", "apply", "-auto-approve"},
		ExitCode:   1,
		Diagnostic: "Error: A resource with the ID already exists",
		Err:        errors.New("exit status 1"),
	}

	assert.Contains(t, err.Error(), "exit 1")
	assert.Contains(t, err.Error(), "already exists")
	assert.True(t, IsToolError(err))
	assert.True(t, IsToolError(fmt.Errorf("apply stage: %w", err)))
	assert.False(t, IsToolError(errors.New("plain")))
}

func TestNewRunnerDefaultsBinary(t *testing.T) {
	r := NewRunner("", nil)
	assert.Equal(t, "terraform", r.Binary)

	r = NewRunner("/usr/local/bin/terraform", nil)
	assert.Equal(t, "/usr/local/bin/terraform", r.Binary)
}
