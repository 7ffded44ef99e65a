// Package terraform provides low-level integration with the terraform binary:
// per-stage init/apply/destroy invocations and structured output capture.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/dbgenai/stackctl/internal/logging"
)

// Runner wraps terraform execution against stage working directories.
type Runner struct {
	// Binary is the terraform executable to invoke.
	Binary string

	logger *slog.Logger
}

// NewRunner constructs a terraform runner streaming tool output to the logger.
func NewRunner(binary string, logger *slog.Logger) *Runner {
	if binary == "" {
		binary = "terraform"
	}
	return &Runner{Binary: binary, logger: logger}
}

// Init runs "terraform init" in the stage directory.
func (r *Runner) Init(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "init", "-input=false")
	return err
}

// Apply runs "terraform apply -auto-approve" in the stage directory and
// returns the combined tool diagnostic, which is non-empty on failure.
func (r *Runner) Apply(ctx context.Context, dir string) (string, error) {
	return r.run(ctx, dir, "apply", "-auto-approve", "-input=false")
}

// Plan runs "terraform plan" in the stage directory without mutating state.
func (r *Runner) Plan(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "plan", "-input=false")
	return err
}

// Destroy runs "terraform destroy -auto-approve" in the stage directory.
func (r *Runner) Destroy(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "destroy", "-auto-approve", "-input=false")
	return err
}

// Import adopts an existing remote resource into the stage's state.
func (r *Runner) Import(ctx context.Context, dir, address, id string) error {
	_, err := r.run(ctx, dir, "import", address, id)
	return err
}

// Outputs reads the stage's output values via "terraform output -json".
// Non-string values are rendered into their canonical string form.
func (r *Runner) Outputs(ctx context.Context, dir string) (map[string]string, error) {
	args := []string{"-chdir=" + dir, "output", "-json"}
	cmd := exec.CommandContext(ctx, r.Binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ToolError{Args: args, ExitCode: exitCode(err), Diagnostic: stderr.String(), Err: err}
	}

	var raw map[string]struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("decode terraform outputs in %s: %w", dir, err)
	}

	out := make(map[string]string, len(raw))
	for key, entry := range raw {
		out[key] = stringify(entry.Value)
	}
	return out, nil
}

// run executes terraform with -chdir, streaming output to the logger while
// capturing the combined diagnostic for error classification.
func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmdArgs := append([]string{"-chdir=" + dir}, args...)
	cmd := exec.CommandContext(ctx, r.Binary, cmdArgs...)

	var combined bytes.Buffer
	sink := io.Writer(&combined)
	if r.logger != nil {
		sink = io.MultiWriter(&combined, logging.NewWriter(r.logger))
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if r.logger != nil {
		r.logger.Debug("running terraform", "args", cmdArgs)
	}

	if err := cmd.Run(); err != nil {
		return combined.String(), &ToolError{
			Args:       cmdArgs,
			ExitCode:   exitCode(err),
			Diagnostic: combined.String(),
			Err:        err,
		}
	}
	return combined.String(), nil
}

// stringify renders a terraform output value as the string handed to
// dependent stages and the exporter.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ToolError indicates a nonzero exit from the infra tool. The tool's own
// diagnostic is preserved verbatim for the operator.
type ToolError struct {
	// Args are the invoked tool arguments.
	Args []string
	// ExitCode is the tool's exit status, -1 when it did not run.
	ExitCode int
	// Diagnostic is the combined tool output.
	Diagnostic string
	// Err is the underlying execution error.
	Err error
}

func (e *ToolError) Error() string {
	if e == nil {
		return "terraform failed"
	}
	return fmt.Sprintf("terraform %v failed (exit %d): %s", e.Args, e.ExitCode, e.Diagnostic)
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsToolError reports whether err originates from a failed tool invocation.
func IsToolError(err error) bool {
	var target *ToolError
	return errors.As(err, &target)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
