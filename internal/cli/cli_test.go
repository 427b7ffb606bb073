package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// run executes the CLI with a private config directory.
func run(t *testing.T, configDir string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config-dir", configDir, "--log-level", "error"}, args...)
	code := Execute(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, p, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
}

func TestVersion(t *testing.T) {
	res := run(t, t.TempDir(), "version")
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stdout, "schematic v"+Version)
	assert.Contains(t, res.stdout, modulePath)
}

func TestArgumentErrors(t *testing.T) {
	cfg := t.TempDir()
	assert.Equal(t, exitUserError, run(t, cfg, "export").code)
	assert.Equal(t, exitUserError, run(t, cfg, "status", "extra").code)
	assert.Equal(t, exitUserError, run(t, cfg, "no-such-command").code)
}

func TestStatusManifestNotFound(t *testing.T) {
	project := t.TempDir()
	res := run(t, t.TempDir(), "--project", project, "status")
	assert.Equal(t, exitManifestNotFound, res.code)
	assert.Contains(t, res.stderr, "manifest not found")

	res = run(t, t.TempDir(), "--manifest", filepath.Join(project, "Nope.json"), "status")
	assert.Equal(t, exitManifestNotFound, res.code)
}

func TestStatusMalformedManifest(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "Content", "Manifest.json"), `{"SchemeName":`)
	res := run(t, t.TempDir(), "--project", project, "status")
	assert.Equal(t, exitLoadError, res.code)
}

func TestStatusPartialLoad(t *testing.T) {
	project := t.TempDir()
	content := filepath.Join(project, "Content")
	writeFile(t, filepath.Join(content, "Manifest.json"), `[
	  {"SchemeName":"Manifest","FilePath":"Manifest.json"},
	  {"SchemeName":"Items","FilePath":"Items.csv"},
	  {"SchemeName":"Invalid"},
	  {"SchemeName":"Broken","FilePath":"Broken.json"}
	]`)
	writeFile(t, filepath.Join(content, "Items.csv"), "Id,Count\nsword,1\nshield,2\n")
	writeFile(t, filepath.Join(content, "Broken.json"), `{"SchemeName":`)

	res := run(t, t.TempDir(), "--project", project, "status")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Items")
	assert.Contains(t, res.stdout, "skipped: Invalid")
	assert.Contains(t, res.stdout, "failed: Broken")

	res = run(t, t.TempDir(), "--project", project, "--json", "status")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var out statusOutput
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	names := make([]string, len(out.Schemes))
	for i, s := range out.Schemes {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Items", "Manifest"}, names)
	assert.Equal(t, 2, out.Schemes[0].Entries)
	assert.Equal(t, []string{"Invalid"}, out.Skipped)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "Broken", out.Failed[0].Name)
}

func TestStatusMetrics(t *testing.T) {
	project := t.TempDir()
	cfg := t.TempDir()
	require.Equal(t, exitSuccess, run(t, cfg, "init", project).code)
	res := run(t, cfg, "--project", project, "status", "--metrics")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "schematic_storage_operations_total")
	assert.Contains(t, res.stdout, "schematic_registry_schemes 1")
}

func TestInitImportExport(t *testing.T) {
	project := t.TempDir()
	cfg := t.TempDir()

	res := run(t, cfg, "init", project)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(cfg, "config.yaml"))
	assert.FileExists(t, filepath.Join(project, "Content", "Manifest.json"))
	res = run(t, cfg, "init", project)
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stdout, "manifest already exists")

	csvPath := filepath.Join(t.TempDir(), "People.csv")
	const csvText = "Name,Age\nalice,30\nbob,41\n"
	writeFile(t, csvPath, csvText)

	res = run(t, cfg, "--project", project, "import", csvPath)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "imported People: 2 attributes, 2 entries")
	assert.FileExists(t, filepath.Join(project, "Content", "People.json"))

	res = run(t, cfg, "--project", project, "import", csvPath)
	assert.Equal(t, exitUserError, res.code, "second import needs --overwrite")
	res = run(t, cfg, "--project", project, "import", "--overwrite", csvPath)
	require.Equal(t, exitSuccess, res.code, res.stderr)

	res = run(t, cfg, "--project", project, "export", "People", "--format", "csv")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Equal(t, csvText, res.stdout)

	goPath := filepath.Join(t.TempDir(), "people.go")
	res = run(t, cfg, "--project", project, "export", "People", "--format", "go", "--package", "data", "-o", goPath)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	src, err := os.ReadFile(goPath)
	require.NoError(t, err)
	assert.Contains(t, string(src), "package data")
	assert.Contains(t, string(src), "type People struct")

	assert.Equal(t, exitUserError, run(t, cfg, "--project", project, "export", "Nobody").code)
	assert.Equal(t, exitUserError, run(t, cfg, "--project", project, "export", "People", "--format", "xml").code)
}
