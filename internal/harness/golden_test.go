package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Java(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/java.yaml")
	require.NoError(t, err)

	// To regenerate:
	//   go test ./internal/harness -run TestRunWithGolden_Java -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestMarshalSnapshot(t *testing.T) {
	data, err := MarshalSnapshot("sample", sampleResult())
	require.NoError(t, err)

	want := `{"edges":[` +
		`{"attribute_matching":true,"cache":"miss","component":"com.google.guava:guava:32.0.0","id":"guava",` +
		`"steps":[{"kind":"not-required","step":"minify"},{"files":["a.jar"],"kind":"files","step":"shrink"}],` +
		`"variants":["apiElements"]},` +
		`{"attribute_matching":false,"failure":"no-matching-variant","id":"native"}],` +
		`"scenario_name":"sample",` +
		`"toolchain":{"location":"/opt/jdk-21","no_match":false,"version":"21.0.1"}}`
	assert.Equal(t, want, string(data))
}

func TestMarshalSnapshot_OmitsContextKeys(t *testing.T) {
	r := sampleResult()
	r.Edges[0].ContextKey = "abc123"

	data, err := MarshalSnapshot("sample", r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc123")
	assert.NotContains(t, string(data), "No matching variant")
}
