package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// modelDir is a model whose edges all resolve; guava carries a pipeline
// and is cached, old resolves through legacy configurations.
var modelDir = filepath.Join("testdata", "model")

// writeModel writes each file into a fresh directory.
func writeModel(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const minimalModel = `
package build

consumer: {
	configuration: "compileClasspath"
	attributes: usage: "java-api"
}

configurations: compileClasspath: {}

components: "org.example:a:1.0.0": variants: api: attributes: usage: "java-api"

dependencies: a: {
	configuration: "compileClasspath"
	module:        "org.example:a"
	version:       "1.0.0"
}
`
