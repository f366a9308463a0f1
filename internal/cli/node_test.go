package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/transport"
)

const testAuthorKey = "abababababababababababababababababababababababababababababababab"

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeFrame builds a signed pin-create frame and writes it to a file.
func writeFrame(t *testing.T, dir string) (string, transport.Tags) {
	t.Helper()
	return writeFrameFor(t, dir, "frame.txt", "peer-evt-1", "pin-create", "pin:semay",
		map[string]string{"name": "Semay Coffee", "lat": "15.3229", "lon": "38.9251"})
}

func writeFrameFor(t *testing.T, dir, file, eventID, eventType, entityID string, payload map[string]string) (string, transport.Tags) {
	t.Helper()
	signer, err := envelope.NewDerivedSigner(strings.Repeat("cd", 32))
	require.NoError(t, err)
	env, err := envelope.NewCodec(signer).Build(envelope.BuildInput{
		EventType: eventType,
		EntityID:  entityID,
		EventID:   eventID,
		CreatedAt: 1700000000,
		Payload:   payload,
	})
	require.NoError(t, err)
	content, tags, err := transport.Encode(env)
	require.NoError(t, err)

	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
	return path, tags
}

func TestNodeLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "selam.yaml")
	dbPath := filepath.Join(dir, "selam.db")

	// init
	out, err := runCLI(t,
		"--config", cfgPath, "--format", "json",
		"init", "--name", "test node", "--db", dbPath, "--key", testAuthorKey)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	// init refuses to clobber an existing config
	_, err = runCLI(t, "--config", cfgPath, "init", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	// apply an inbound frame
	framePath, tags := writeFrame(t, dir)
	out, err = runCLI(t,
		"--config", cfgPath, "--format", "json",
		"apply", framePath, "--event-id", tags.EventID, "--event-type", tags.EventType)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	// duplicate apply is idempotent
	_, err = runCLI(t, "--config", cfgPath, "apply", framePath)
	require.NoError(t, err)

	// share moves the entity into the outbox
	out, err = runCLI(t, "--config", cfgPath, "--format", "json", "share", "pin:semay")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	out, err = runCLI(t, "--config", cfgPath, "outbox")
	require.NoError(t, err)
	assert.Contains(t, out, "pin:semay")
	assert.Contains(t, out, "pending_review")

	// status reports the log and entity counts
	out, err = runCLI(t, "--config", cfgPath, "--format", "json", "status")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var status nodeStatus
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "test node", status.NodeName)
	assert.Equal(t, int64(1), status.LogSize)
	assert.Equal(t, 1, status.Entities["pin"])
	assert.Equal(t, 1, status.OutboxDepth)

	// unshare drains the outbox
	_, err = runCLI(t, "--config", cfgPath, "unshare", "pin:semay")
	require.NoError(t, err)
	out, err = runCLI(t, "--config", cfgPath, "outbox")
	require.NoError(t, err)
	assert.Contains(t, out, "outbox empty")
}

func TestApply_RejectedFrameExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "selam.yaml")
	_, err := runCLI(t,
		"--config", cfgPath,
		"init", "--db", filepath.Join(dir, "selam.db"), "--key", testAuthorKey)
	require.NoError(t, err)

	framePath := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(framePath, []byte("not-a-frame"), 0o644))

	_, err = runCLI(t, "--config", cfgPath, "apply", framePath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad-framing")
}

func TestShare_UnknownEntityFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "selam.yaml")
	_, err := runCLI(t,
		"--config", cfgPath,
		"init", "--db", filepath.Join(dir, "selam.db"), "--key", testAuthorKey)
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfgPath, "share", "pin:ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown-entity")
}

func TestStatus_TextEntityCountsSorted(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "selam.yaml")
	_, err := runCLI(t,
		"--config", cfgPath,
		"init", "--db", filepath.Join(dir, "selam.db"), "--key", testAuthorKey)
	require.NoError(t, err)

	pinFrame, _ := writeFrameFor(t, dir, "pin.txt", "peer-evt-pin", "pin-create", "pin:semay",
		map[string]string{"name": "Semay Coffee", "lat": "15.3229", "lon": "38.9251"})
	bizFrame, _ := writeFrameFor(t, dir, "biz.txt", "peer-evt-biz", "business-register", "business:semay",
		map[string]string{"name": "Semay Trading"})
	for _, frame := range []string{pinFrame, bizFrame} {
		_, err = runCLI(t, "--config", cfgPath, "apply", frame)
		require.NoError(t, err)
	}

	// Kind lines print in sorted order, stable across runs.
	for i := 0; i < 3; i++ {
		out, err := runCLI(t, "--config", cfgPath, "status")
		require.NoError(t, err)
		biz := strings.Index(out, "business")
		pin := strings.Index(out, "pin")
		require.GreaterOrEqual(t, biz, 0, "run %d: %s", i, out)
		require.GreaterOrEqual(t, pin, 0, "run %d: %s", i, out)
		assert.Less(t, biz, pin, "run %d: kinds out of order:\n%s", i, out)
	}
}

func TestMissingConfigIsCommandError(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "outbox")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
