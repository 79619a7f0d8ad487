package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/java.yaml")
	require.NoError(t, err)

	assert.Equal(t, "java", scenario.Name)
	assert.Equal(t, 2, scenario.Passes)
	require.Len(t, scenario.Edges, 3)
	assert.Equal(t, "guava", scenario.Edges[0].ID)
	assert.Equal(t, []string{"apiElements"}, scenario.Edges[0].Variants)
	require.NotNil(t, scenario.Edges[0].AttributeMatching)
	assert.True(t, *scenario.Edges[0].AttributeMatching)
	require.Len(t, scenario.Edges[0].Steps, 2)
	assert.Equal(t, StepExpectation{Step: "minify", Kind: KindNotRequired}, scenario.Edges[0].Steps[0])
	assert.Equal(t, "no-matching-variant", scenario.Edges[2].Failure)
	require.NotNil(t, scenario.Toolchain)
	assert.Equal(t, "/opt/jdk-21", scenario.Toolchain.Location)

	assert.Contains(t, scenario.ModelURL(), "models/java")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingModelDir(t *testing.T) {
	dir := t.TempDir()
	p := writeScenario(t, dir, `
name: x
description: "model dir does not exist"
model: missing
edges:
  - id: a
`)
	_, err := LoadScenario(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model directory not found")
}

func TestParseScenario_DefaultsPasses(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: x
description: "inline"
source: "consumer: {}"
edges:
  - id: a
`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Passes)
	assert.Equal(t, "", s.ModelURL())
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\nsource: s\nedge:\n  - id: a\n",
			want:    "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: d\nsource: s\nedges:\n  - id: a\n",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nsource: s\nedges:\n  - id: a\n",
			want:    "description is required",
		},
		{
			name:    "no model",
			content: "name: x\ndescription: d\nedges:\n  - id: a\n",
			want:    "one of model or source is required",
		},
		{
			name:    "model and source",
			content: "name: x\ndescription: d\nmodel: m\nsource: s\nedges:\n  - id: a\n",
			want:    "mutually exclusive",
		},
		{
			name:    "negative passes",
			content: "name: x\ndescription: d\nsource: s\npasses: -1\nedges:\n  - id: a\n",
			want:    "passes must be positive",
		},
		{
			name:    "no edges",
			content: "name: x\ndescription: d\nsource: s\n",
			want:    "edges list is required",
		},
		{
			name:    "edge without id",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - component: a\n",
			want:    "edges[0]: id is required",
		},
		{
			name:    "duplicate edge",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n  - id: a\n",
			want:    `edges[1]: duplicate edge "a"`,
		},
		{
			name:    "failure with variants",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    failure: no-matching-variant\n    variants: [v]\n",
			want:    "a failing edge expects only failure and message",
		},
		{
			name:    "message without failure",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    message: boom\n",
			want:    "message needs failure",
		},
		{
			name:    "unknown cache status",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    cache: warm\n",
			want:    `unknown cache status "warm"`,
		},
		{
			name:    "step without name",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    steps:\n      - kind: files\n",
			want:    "edges[0].steps[0]: step is required",
		},
		{
			name:    "unknown step kind",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    steps:\n      - step: s\n        kind: maybe\n",
			want:    `unknown kind "maybe"`,
		},
		{
			name:    "not-required with files",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\n    steps:\n      - step: s\n        kind: not-required\n        files: [a.jar]\n",
			want:    "not-required step has no files",
		},
		{
			name:    "no_match with location",
			content: "name: x\ndescription: d\nsource: s\nedges:\n  - id: a\ntoolchain:\n  no_match: true\n  location: /opt\n",
			want:    "no_match excludes location and version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
