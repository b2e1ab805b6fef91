package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScenario = `name: two_kingdoms
description: Two-country fixture.
countries:
  - id: 1
    tag: RED
    name: Redland
    color: [200, 30, 30]
    treasury: "100"
  - id: 2
    tag: BLU
    name: Bluvia
    color: [30, 30, 200]
    treasury: "50"
provinces:
  - id: 10
    name: Red Plains
    terrain: plains
    owner: RED
    development: "12.500"
  - id: 11
    name: Blue Coast
    terrain: hills
    owner: BLU
    coastal: true
  - id: 12
    name: Open Sea
    terrain: ocean
`

const testScript = `name: conquest
description: War, a treasury debit, annexation, and peace.
scenario: two_kingdoms.yaml
ticks:
  - commands:
      - {kind: declare_war, a: 1, b: 2}
      - {kind: adjust_treasury, country: 1, value: "-10"}
  - commands:
      - {kind: change_owner, province: 11, owner: 1}
  - commands:
      - {kind: make_peace, a: 1, b: 2}
assertions:
  - {type: owner, province: 11, country: 1}
  - {type: treasury, country: 1, value: "90"}
`

// writeFixtures writes a scenario and a script that references it into a
// temp dir and returns their paths.
func writeFixtures(t *testing.T) (scenarioPath, scriptPath string) {
	t.Helper()
	dir := t.TempDir()
	scenarioPath = filepath.Join(dir, "two_kingdoms.yaml")
	scriptPath = filepath.Join(dir, "conquest.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(testScenario), 0o644))
	require.NoError(t, os.WriteFile(scriptPath, []byte(testScript), 0o644))
	return scenarioPath, scriptPath
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Error(ExitFailure, "something broke")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "error: something broke")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestGetExitCode_PlainError(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

func TestValidate_ValidScenario(t *testing.T) {
	scenarioPath, _ := writeFixtures(t)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenarioPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "ok (two_kingdoms, 2 countries, 3 provinces)")
}

func TestValidate_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\ncountries: []\nprovinces: []\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "error:")
}

func TestDigest_Deterministic(t *testing.T) {
	scenarioPath, _ := writeFixtures(t)

	run := func() string {
		buf := &bytes.Buffer{}
		cmd := NewDigestCommand(&RootOptions{Format: "text"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{scenarioPath})
		require.NoError(t, cmd.Execute())
		return buf.String()
	}

	first := run()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, run())
}

func TestRun_ChecksAssertions(t *testing.T) {
	_, scriptPath := writeFixtures(t)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scriptPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "conquest: 3 tick(s), 4 command(s) executed")
	assert.Contains(t, buf.String(), "digest ")
}

func TestRun_FailedAssertion(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "two_kingdoms.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(testScenario), 0o644))

	script := `name: wrong
scenario: two_kingdoms.yaml
ticks:
  - commands:
      - {kind: change_owner, province: 11, owner: 1}
assertions:
  - {type: owner, province: 11, country: 2}
`
	scriptPath := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scriptPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion(s) failed")
}

func TestRun_RecordReplayRoundTrip(t *testing.T) {
	_, scriptPath := writeFixtures(t)
	savePath := filepath.Join(t.TempDir(), "save.db")

	buf := &bytes.Buffer{}
	runCmd := NewRunCommand(&RootOptions{Format: "json", SavePath: savePath})
	runCmd.SetOut(buf)
	runCmd.SetArgs([]string{scriptPath, "--record"})
	require.NoError(t, runCmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	token, _ := data["session"].(string)
	require.NotEmpty(t, token)

	replayBuf := &bytes.Buffer{}
	replayCmd := NewReplayCommand(&RootOptions{Format: "text", SavePath: savePath})
	replayCmd.SetOut(replayBuf)
	replayCmd.SetArgs([]string{token})
	require.NoError(t, replayCmd.Execute())
	assert.Contains(t, replayBuf.String(), "4 command(s) replayed to tick 3 (verified)")
	assert.Contains(t, replayBuf.String(), data["digest"].(string))

	listBuf := &bytes.Buffer{}
	listCmd := NewSessionsCommand(&RootOptions{Format: "text", SavePath: savePath})
	listCmd.SetOut(listBuf)
	listCmd.SetArgs([]string{"list"})
	require.NoError(t, listCmd.Execute())
	assert.Contains(t, listBuf.String(), token)
}

func TestReplay_UnknownSession(t *testing.T) {
	savePath := filepath.Join(t.TempDir(), "save.db")

	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: "text", SavePath: savePath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"no-such-token"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSessions_ListEmpty(t *testing.T) {
	savePath := filepath.Join(t.TempDir(), "save.db")

	buf := &bytes.Buffer{}
	cmd := NewSessionsCommand(&RootOptions{Format: "text", SavePath: savePath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"list"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no sessions")
}

func TestSessions_ExportImport(t *testing.T) {
	_, scriptPath := writeFixtures(t)
	dir := t.TempDir()
	savePath := filepath.Join(dir, "save.db")
	archivePath := filepath.Join(dir, "session.szs")

	buf := &bytes.Buffer{}
	runCmd := NewRunCommand(&RootOptions{Format: "json", SavePath: savePath})
	runCmd.SetOut(buf)
	runCmd.SetArgs([]string{scriptPath, "--record"})
	require.NoError(t, runCmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	token := resp.Data.(map[string]any)["session"].(string)

	exportCmd := NewSessionsCommand(&RootOptions{Format: "text", SavePath: savePath})
	exportCmd.SetOut(&bytes.Buffer{})
	exportCmd.SetArgs([]string{"export", token, archivePath})
	require.NoError(t, exportCmd.Execute())

	importBuf := &bytes.Buffer{}
	otherSave := filepath.Join(dir, "other.db")
	importCmd := NewSessionsCommand(&RootOptions{Format: "text", SavePath: otherSave})
	importCmd.SetOut(importBuf)
	importCmd.SetArgs([]string{"import", archivePath})
	require.NoError(t, importCmd.Execute())
	assert.Contains(t, importBuf.String(), "imported")

	listBuf := &bytes.Buffer{}
	listCmd := NewSessionsCommand(&RootOptions{Format: "text", SavePath: otherSave})
	listCmd.SetOut(listBuf)
	listCmd.SetArgs([]string{"list"})
	require.NoError(t, listCmd.Execute())
	assert.Contains(t, listBuf.String(), "two_kingdoms.yaml")
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "sessions", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
