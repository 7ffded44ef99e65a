package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbgenai/stackctl/internal/envfile"
	"github.com/dbgenai/stackctl/internal/stack"
)

// fakeRunner scripts per-directory tool behavior and records every call.
type fakeRunner struct {
	// outputs maps a stage dir to the output values its state reports.
	outputs map[string]map[string]string
	// applyErr fails the first apply in the given dir with this error.
	applyErr map[string]error
	// applyDiag is the diagnostic returned alongside applyErr.
	applyDiag map[string]string
	// destroyErr fails destroy in the given dir.
	destroyErr map[string]error
	// outputsErr fails output capture in the given dir.
	outputsErr map[string]error

	calls      []string
	applyCount map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:    make(map[string]map[string]string),
		applyErr:   make(map[string]error),
		applyDiag:  make(map[string]string),
		destroyErr: make(map[string]error),
		outputsErr: make(map[string]error),
		applyCount: make(map[string]int),
	}
}

func (f *fakeRunner) record(op, dir string) {
	f.calls = append(f.calls, op+":"+filepath.Base(dir))
}

func (f *fakeRunner) Init(_ context.Context, dir string) error {
	f.record("init", dir)
	return nil
}

func (f *fakeRunner) Apply(_ context.Context, dir string) (string, error) {
	f.record("apply", dir)
	f.applyCount[filepath.Base(dir)]++
	if err, ok := f.applyErr[filepath.Base(dir)]; ok && f.applyCount[filepath.Base(dir)] == 1 {
		return f.applyDiag[filepath.Base(dir)], err
	}
	return "", nil
}

func (f *fakeRunner) Plan(_ context.Context, dir string) error {
	f.record("plan", dir)
	return nil
}

func (f *fakeRunner) Destroy(_ context.Context, dir string) error {
	f.record("destroy", dir)
	if err, ok := f.destroyErr[filepath.Base(dir)]; ok {
		return err
	}
	return nil
}

func (f *fakeRunner) Import(_ context.Context, dir, address, id string) error {
	f.calls = append(f.calls, fmt.Sprintf("import:%s:%s:%s", filepath.Base(dir), address, id))
	return nil
}

func (f *fakeRunner) Outputs(_ context.Context, dir string) (map[string]string, error) {
	f.record("outputs", dir)
	if err, ok := f.outputsErr[filepath.Base(dir)]; ok {
		return nil, err
	}
	return f.outputs[filepath.Base(dir)], nil
}

func (f *fakeRunner) applied() []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "apply:") {
			out = append(out, strings.TrimPrefix(c, "apply:"))
		}
	}
	return out
}

// fakeExporter snapshots the run context at every export call.
type fakeExporter struct {
	snapshots []map[string]string
}

func (f *fakeExporter) Export(_ context.Context, rc *stack.RunContext) error {
	f.snapshots = append(f.snapshots, rc.Values())
	return nil
}

// fakeResolver serves a fixed latest version for any model.
type fakeResolver struct {
	version string
}

func (f fakeResolver) LatestModelVersion(context.Context, string) (string, error) {
	return f.version, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testStages is a three-link chain: base produces an id, mid consumes it and
// produces a url, top consumes both.
func testStages() []stack.Stage {
	return []stack.Stage{
		{
			Name:    "base",
			Dir:     "base",
			Inputs:  []stack.Input{{Key: "name", Default: "base-name"}},
			Outputs: []string{"id"},
		},
		{
			Name:      "mid",
			Dir:       "mid",
			DependsOn: []string{"base"},
			Inputs: []stack.Input{
				{Key: "base_id", From: "base.id"},
				{Key: "size", Default: 2},
			},
			Outputs: []string{"url"},
		},
		{
			Name:      "top",
			Dir:       "top",
			DependsOn: []string{"mid"},
			Inputs: []stack.Input{
				{Key: "url", From: "mid.url"},
				{Key: "enabled", Default: true},
			},
		},
	}
}

func newTestEngine(t *testing.T, stages []stack.Stage, runner *fakeRunner, opts ...func(*Params)) (*Engine, string) {
	t.Helper()
	reg, err := stack.NewRegistry(stages)
	require.NoError(t, err)

	root := t.TempDir()
	for _, s := range stages {
		require.NoError(t, os.MkdirAll(filepath.Join(root, s.Dir), 0o755))
	}

	p := Params{
		Logger:   testLogger(),
		Registry: reg,
		Runner:   runner,
		Root:     root,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return New(p), root
}

func readVars(t *testing.T, root, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, dir, "terraform.tfvars"))
	require.NoError(t, err)
	return string(data)
}

func TestDeployAllPropagatesOutputs(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}

	eng, root := newTestEngine(t, testStages(), runner)

	report, err := eng.Deploy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "mid", "top"}, report.Succeeded())
	assert.Empty(t, report.Failed())
	assert.Empty(t, report.Skipped())
	assert.Equal(t, []string{"base", "mid", "top"}, runner.applied())

	midVars := readVars(t, root, "mid")
	assert.Contains(t, midVars, `base_id = "base-123"`)
	assert.Contains(t, midVars, "size = 2")

	topVars := readVars(t, root, "top")
	assert.Contains(t, topVars, `url = "mid.example.net"`)
	assert.Contains(t, topVars, "enabled = true")
}

func TestDeployFailureAbortsAndSkipsRemaining(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.applyErr["mid"] = errors.New("quota exceeded")

	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Deploy(context.Background(), stack.AllStages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `deploy aborted at stage "mid"`)
	assert.Contains(t, err.Error(), "quota exceeded")

	assert.Equal(t, []string{"base"}, report.Succeeded())
	assert.Equal(t, []string{"mid"}, report.Failed())
	assert.Equal(t, []string{"top"}, report.Skipped())
	assert.NotContains(t, runner.applied(), "top")
}

func TestDeployIncompleteOutputsFailStage(t *testing.T) {
	runner := newFakeRunner()
	// base applies cleanly but its state omits the declared id.
	runner.outputs["base"] = map[string]string{}

	exporter := &fakeExporter{}
	eng, _ := newTestEngine(t, testStages(), runner, func(p *Params) {
		p.Exporter = exporter
	})

	report, err := eng.Deploy(context.Background(), stack.AllStages())
	require.Error(t, err)
	assert.True(t, IsIncompleteOutputError(err))
	assert.Contains(t, err.Error(), `stage "base"`)
	assert.Contains(t, err.Error(), "id")

	assert.Equal(t, []string{"base"}, report.Failed())
	assert.Equal(t, []string{"mid", "top"}, report.Skipped())
	assert.Empty(t, exporter.snapshots, "nothing is exported for a failed stage")
}

func TestDeployNeverPropagatesPartialOutputs(t *testing.T) {
	stages := testStages()
	stages[0].Outputs = []string{"id", "region"}

	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"} // region missing

	eng, _ := newTestEngine(t, stages, runner)

	report, err := eng.Deploy(context.Background(), stack.AllStages())
	require.Error(t, err)
	assert.True(t, IsIncompleteOutputError(err))

	require.Len(t, report.Runs, 3)
	assert.Nil(t, report.Runs[0].Outputs, "a partial output map must not be recorded")
}

func TestDeploySingleStageReusesPrerequisiteOutputs(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}

	eng, root := newTestEngine(t, testStages(), runner)

	report, err := eng.Deploy(context.Background(), stack.SingleStage("top"))
	require.NoError(t, err)

	assert.Equal(t, []string{"top"}, report.Succeeded())
	assert.Equal(t, []string{"top"}, runner.applied(), "prerequisites are read, not re-applied")
	assert.Contains(t, readVars(t, root, "top"), `url = "mid.example.net"`)
}

func TestDeploySingleStageMissingPrerequisiteFails(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{} // mid was never applied

	eng, _ := newTestEngine(t, testStages(), runner)

	_, err := eng.Deploy(context.Background(), stack.SingleStage("top"))
	require.Error(t, err)
	assert.True(t, stack.IsMissingDependencyError(err))
	assert.Contains(t, err.Error(), `"mid"`)
	assert.Empty(t, runner.applied())
}

func TestDeployOverridesWinOverContext(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}

	eng, root := newTestEngine(t, testStages(), runner, func(p *Params) {
		p.Overrides = envfile.Vars{"size": "8", "enabled": "false"}
	})

	_, err := eng.Deploy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Contains(t, readVars(t, root, "mid"), "size = 8")
	assert.Contains(t, readVars(t, root, "top"), "enabled = false")
}

func TestDeployImportRecovery(t *testing.T) {
	stages := testStages()
	stages[1].Import = &stack.ImportRule{
		Address:  "azurerm_thing.main",
		Match:    []string{"already exists", "azurerm_thing"},
		IDFrom:   "base.id",
		IDSuffix: "/things/main",
	}

	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}
	runner.applyErr["mid"] = errors.New("apply failed")
	runner.applyDiag["mid"] = `resource "azurerm_thing" already exists - to be managed it needs to be imported`

	eng, _ := newTestEngine(t, stages, runner)

	report, err := eng.Deploy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "mid", "top"}, report.Succeeded())
	assert.Contains(t, runner.calls, "import:mid:azurerm_thing.main:base-123/things/main")
	assert.Equal(t, 2, runner.applyCount["mid"], "apply is retried once after the import")
}

func TestDeployImportNotAttemptedOnUnrelatedFailure(t *testing.T) {
	stages := testStages()
	stages[1].Import = &stack.ImportRule{
		Address: "azurerm_thing.main",
		Match:   []string{"already exists", "azurerm_thing"},
		IDFrom:  "base.id",
	}

	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.applyErr["mid"] = errors.New("apply failed")
	runner.applyDiag["mid"] = "authorization denied"

	eng, _ := newTestEngine(t, stages, runner)

	_, err := eng.Deploy(context.Background(), stack.AllStages())
	require.Error(t, err)
	for _, c := range runner.calls {
		assert.False(t, strings.HasPrefix(c, "import:"), "no import for a non-matching diagnostic")
	}
	assert.Equal(t, 1, runner.applyCount["mid"])
}

func TestDeployExportsAfterEachSuccess(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}

	exporter := &fakeExporter{}
	eng, _ := newTestEngine(t, testStages(), runner, func(p *Params) {
		p.Exporter = exporter
	})

	_, err := eng.Deploy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	require.Len(t, exporter.snapshots, 3)
	assert.Equal(t, map[string]string{"base.id": "base-123"}, exporter.snapshots[0])
	assert.Equal(t, "mid.example.net", exporter.snapshots[1]["mid.url"])
}

func TestDeployResolvesLatestModelVersion(t *testing.T) {
	stages := []stack.Stage{
		{
			Name:    stack.StageDatabricksWorkspace,
			Dir:     "workspace",
			Outputs: []string{"databricks_workspace_url"},
		},
		{
			Name:      "serving",
			Dir:       "serving",
			DependsOn: []string{stack.StageDatabricksWorkspace},
			Inputs: []stack.Input{
				{Key: "model_version", LatestModelOf: "basic-chatbot"},
			},
		},
	}

	runner := newFakeRunner()
	runner.outputs["workspace"] = map[string]string{"databricks_workspace_url": "adb-1.azuredatabricks.net"}

	var resolvedHost string
	eng, root := newTestEngine(t, stages, runner, func(p *Params) {
		p.NewResolver = func(workspaceURL string) (ModelResolver, error) {
			resolvedHost = workspaceURL
			return fakeResolver{version: "4"}, nil
		}
	})

	_, err := eng.Deploy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Equal(t, "adb-1.azuredatabricks.net", resolvedHost)
	assert.Contains(t, readVars(t, root, "serving"), `model_version = "4"`)
}

func TestDestroyRunsInReverseOrder(t *testing.T) {
	runner := newFakeRunner()
	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Destroy(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Equal(t, []string{"top", "mid", "base"}, report.Succeeded())

	var destroyed []string
	for _, c := range runner.calls {
		if strings.HasPrefix(c, "destroy:") {
			destroyed = append(destroyed, strings.TrimPrefix(c, "destroy:"))
		}
	}
	assert.Equal(t, []string{"top", "mid", "base"}, destroyed)
}

func TestDestroyContinuesPastFailures(t *testing.T) {
	runner := newFakeRunner()
	runner.destroyErr["mid"] = errors.New("lock held")

	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Destroy(context.Background(), stack.AllStages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teardown incomplete")
	assert.Contains(t, err.Error(), "mid")

	assert.Equal(t, []string{"top", "base"}, report.Succeeded(), "later stages are still attempted")
	assert.Equal(t, []string{"mid"}, report.Failed())
}

func TestDestroySingleStageTearsDownDependentsFirst(t *testing.T) {
	runner := newFakeRunner()
	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Destroy(context.Background(), stack.SingleStage("mid"))
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "mid"}, report.Succeeded())
}

func TestPlanSkipsStagesWithoutRecordedPrerequisites(t *testing.T) {
	runner := newFakeRunner()
	// Nothing applied yet: base has no recorded outputs.
	runner.outputs["base"] = map[string]string{}

	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Plan(context.Background(), stack.AllStages())
	require.NoError(t, err)

	assert.Equal(t, []string{"base"}, report.Succeeded())
	assert.Equal(t, []string{"mid", "top"}, report.Skipped())
}

func TestPlanSeedsOutputsFromAppliedState(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["base"] = map[string]string{"id": "base-123"}
	runner.outputs["mid"] = map[string]string{"url": "mid.example.net"}

	eng, _ := newTestEngine(t, testStages(), runner)

	report, err := eng.Plan(context.Background(), stack.AllStages())
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "mid", "top"}, report.Succeeded())
	assert.Empty(t, report.Skipped())
}

func TestDeployUnknownStage(t *testing.T) {
	runner := newFakeRunner()
	eng, _ := newTestEngine(t, testStages(), runner)

	_, err := eng.Deploy(context.Background(), stack.SingleStage("ghost"))
	require.Error(t, err)
	assert.True(t, stack.IsUnknownStageError(err))
}
