package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInlineVars(t *testing.T) {
	vars, err := ParseInlineVars("location=westus2, deployment_capacity=5,use_ml_runtime=false")
	require.NoError(t, err)
	assert.Equal(t, Vars{
		"location":            "westus2",
		"deployment_capacity": "5",
		"use_ml_runtime":      "false",
	}, vars)
}

func TestParseInlineVarsEmpty(t *testing.T) {
	vars, err := ParseInlineVars("  ")
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestParseInlineVarsRejectsMalformed(t *testing.T) {
	_, err := ParseInlineVars("location")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = ParseInlineVars("=oops")
	require.Error(t, err)
}

func TestParseInlineVarsKeepsEqualsInValue(t *testing.T) {
	vars, err := ParseInlineVars("openai_pypi_package=openai==1.56.0")
	require.NoError(t, err)
	assert.Equal(t, "openai==1.56.0", vars["openai_pypi_package"])
}

func TestMergeLaterSetsWin(t *testing.T) {
	merged := Merge(
		Vars{"A": "1", "B": "1"},
		Vars{"B": "2", "C": "2"},
	)
	assert.Equal(t, Vars{"A": "1", "B": "2", "C": "2"}, merged)
}

func TestReadMissingFileYieldsEmpty(t *testing.T) {
	vars, err := Read(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestWritePreservesUnrelatedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CUSTOM_FLAG=keep-me\nOPENAI_API_BASE=old\n"), 0o600))

	err := Write(path, []string{"OPENAI_API_BASE", "OPENAI_API_VERSION"}, Vars{
		"OPENAI_API_BASE":    "https://new.example.net/",
		"OPENAI_API_VERSION": "2024-02-15-preview",
	})
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", got["CUSTOM_FLAG"])
	assert.Equal(t, "https://new.example.net/", got["OPENAI_API_BASE"])
	assert.Equal(t, "2024-02-15-preview", got["OPENAI_API_VERSION"])
}

func TestWriteOrdersPreferredKeysFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	err := Write(path, []string{"B_KEY", "A_KEY"}, Vars{
		"A_KEY": "a",
		"B_KEY": "b",
		"Z_KEY": "z",
		"C_KEY": "c",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "B_KEY=b\nA_KEY=a\nC_KEY=c\nZ_KEY=z\n", string(data))
}

func TestWriteEmptyMergeIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, Write(path, nil, Vars{}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
