package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildBinary compiles cmd/daoyoucode and copies it into an empty directory,
// so it runs without .fulmen/app.yaml or a config file nearby.
func buildBinary(t *testing.T) (binary, dir string) {
	t.Helper()
	gomod, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err)
	root := filepath.Dir(strings.TrimSpace(string(gomod)))
	require.NotEqual(t, ".", root, "go env GOMOD returned empty")

	built := filepath.Join(t.TempDir(), "daoyoucode")
	build := exec.Command("go", "build", "-o", built, "./cmd/daoyoucode")
	build.Dir = root
	out, err := build.CombinedOutput()
	require.NoError(t, err, string(out))

	dir = t.TempDir()
	binary = filepath.Join(dir, "daoyoucode")
	data, err := os.ReadFile(built)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(binary, data, 0o755))
	return binary, dir
}

func run(t *testing.T, dir, binary string, args ...string) string {
	t.Helper()
	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+filepath.Join(dir, "config"))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s %v:\n%s", binary, args, out)
	return string(out)
}

func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-only exec test")
	}
	binary, dir := buildBinary(t)

	run(t, dir, binary, "version")

	help := run(t, dir, binary, "--help")
	for _, sub := range []string{"exec", "followup", "serve", "history", "skills", "resilience"} {
		require.Contains(t, help, sub)
	}

	skills := run(t, dir, binary, "skills", "list", "--output-format", "json")
	for _, name := range []string{"explain-code", "code-review", "commit-message"} {
		require.Contains(t, skills, name)
	}
}
