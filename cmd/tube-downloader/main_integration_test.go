package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup ---

var (
	binaryName  = "tube-downloader"
	binaryPath  string
	projectRoot string
)

// TestMain runs setup before all tests in the package
func TestMain(m *testing.M) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Println("Could not get caller information")
		os.Exit(1)
	}
	// Navigate up from cmd/tube-downloader
	projectRoot = filepath.Join(filepath.Dir(filename), "..", "..")

	// Build the binary
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	binaryPath = filepath.Join(projectRoot, binaryName)
	fmt.Println("Building binary for integration tests...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	buildCmd.Dir = filepath.Join(projectRoot, "cmd", "tube-downloader")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		fmt.Printf("Failed to build binary: %v\nOutput:\n%s\n", err, string(buildOutput))
		os.Exit(1)
	}
	fmt.Println("Binary built successfully:", binaryPath)

	exitCode := m.Run()

	_ = os.Remove(binaryPath)
	os.Exit(exitCode)
}

// --- Helper Functions ---

// runCommand executes the downloader binary with given arguments
func runCommand(t *testing.T, args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = projectRoot

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed with error: %v\nStderr:\n%s", err, stderr.String())
	}

	return stdout.String(), stderr.String(), err
}

// createTempConfig creates a temporary TOML config file whose paths all live
// under a temp directory so tests never touch a real install.
func createTempConfig(t *testing.T, extraContent string) string {
	t.Helper()
	tempDir := t.TempDir()
	content := fmt.Sprintf(`
SavePath = %q
DataDir = %q
DatabasePath = %q
BleveIndexPath = %q
`,
		filepath.Join(tempDir, "videos"),
		filepath.Join(tempDir, "data"),
		filepath.Join(tempDir, "data", "db"),
		filepath.Join(tempDir, "data", "recent.bleve"),
	)
	content += extraContent

	tempFile := filepath.Join(tempDir, "temp_config.toml")
	err := os.WriteFile(tempFile, []byte(content), 0644)
	require.NoError(t, err, "Failed to write temporary config file")
	return tempFile
}

// --- Test Cases ---

func TestHelpListsCommands(t *testing.T) {
	stdout, _, err := runCommand(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"get", "probe", "recent", "cookies", "clean"} {
		assert.Contains(t, stdout, sub, "help should list the %s command", sub)
	}
}

func TestRecentListEmpty(t *testing.T) {
	tempCfgPath := createTempConfig(t, "")

	stdout, _, err := runCommand(t, "--config", tempCfgPath, "recent", "list")
	require.NoError(t, err)

	// Header prints even with no records
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "Title")
}

func TestGetRejectsInvalidURL(t *testing.T) {
	tempCfgPath := createTempConfig(t, "")

	_, stderr, err := runCommand(t, "--config", tempCfgPath, "get", "not-a-video-url")
	assert.Error(t, err, "get with an invalid URL should exit non-zero")
	assert.Contains(t, stderr, "Invalid URL")
}

func TestProbeRejectsInvalidURL(t *testing.T) {
	tempCfgPath := createTempConfig(t, "")

	_, stderr, err := runCommand(t, "--config", tempCfgPath, "probe", "https://example.com/page")
	assert.Error(t, err)
	assert.Contains(t, stderr, "Invalid URL")
}

func TestCookiesPathUsesDataDir(t *testing.T) {
	tempCfgPath := createTempConfig(t, "")

	stdout, _, err := runCommand(t, "--config", tempCfgPath, "cookies", "path")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cookies.txt")
}

func TestCleanRemovesPartialFiles(t *testing.T) {
	tempCfgPath := createTempConfig(t, "")

	// The save dir is created on demand by get; create it by hand here
	// along with some leftovers
	cfgBytes, err := os.ReadFile(tempCfgPath)
	require.NoError(t, err)
	var saveDir string
	for _, line := range strings.Split(string(cfgBytes), "\n") {
		if strings.HasPrefix(line, "SavePath = ") {
			saveDir = strings.Trim(strings.TrimPrefix(line, "SavePath = "), `"`)
		}
	}
	require.NotEmpty(t, saveDir)
	require.NoError(t, os.MkdirAll(saveDir, 0755))

	keep := filepath.Join(saveDir, "video.mp4")
	part := filepath.Join(saveDir, "video.mp4.part")
	ytdl := filepath.Join(saveDir, "video.mp4.ytdl")
	for _, p := range []string{keep, part, ytdl} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	_, _, err = runCommand(t, "--config", tempCfgPath, "clean")
	require.NoError(t, err)

	_, err = os.Stat(keep)
	assert.NoError(t, err, "finished media must survive clean")
	_, err = os.Stat(part)
	assert.True(t, os.IsNotExist(err), ".part file should be removed")
	_, err = os.Stat(ytdl)
	assert.True(t, os.IsNotExist(err), ".ytdl file should be removed")
}

func TestInvalidLogLevelFails(t *testing.T) {
	_, stderr, err := runCommand(t, "--log-level", "shouting", "recent", "list")
	assert.Error(t, err)
	assert.Contains(t, stderr, "log-level")
}
