// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/agent"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "deskpilot version dev")
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	// An unreadable config must not matter: version skips config loading.
	root.SetArgs([]string{"--config", "/nonexistent/config.yaml", "version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "deskpilot version dev\n", out.String())
}

func TestRootCmd_IndependentFlagState(t *testing.T) {
	first := NewRootCommand()
	require.NoError(t, first.PersistentFlags().Parse([]string{"--config", "/tmp/first.yaml", "--env-file", "/tmp/first.env"}))

	second := NewRootCommand()
	require.NoError(t, second.PersistentFlags().Parse([]string{"--config", "/tmp/second.yaml"}))

	assert.Equal(t, "/tmp/first.yaml", first.PersistentFlags().Lookup("config").Value.String())
	assert.Equal(t, "/tmp/first.env", first.PersistentFlags().Lookup("env-file").Value.String())
	assert.Equal(t, "/tmp/second.yaml", second.PersistentFlags().Lookup("config").Value.String())
	assert.Equal(t, ".env", second.PersistentFlags().Lookup("env-file").Value.String())
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)
	t.Setenv("DESKPILOT_AGENT_MAX_ACTIONS_PER_STEP", "0")

	_, err := executeCommand(t, w, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_actions_per_step")
}

func TestConfigShow(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)
	t.Setenv("DESKPILOT_AGENT_NAME", "Jarvis")
	t.Setenv("DESKPILOT_JOURNAL_DSN", "postgres://deskpilot:hunter2@db/deskpilot")

	out, err := executeCommand(t, w, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Jarvis", "environment overrides the file")
	assert.Contains(t, out, "step_delay: 1ms")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "hunter2")
}

func TestPerceiveCmd(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)

	out, err := executeCommand(t, w, "perceive")
	require.NoError(t, err)
	assert.Contains(t, out, "Current App: Notes\n")
	assert.Contains(t, out, "*[1]<Button>New Note</Button>")
	assert.Contains(t, out, "3 notes")
	assert.Contains(t, out, "2 indexed elements")
}

func TestPerceiveCmd_Tree(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)

	out, err := executeCommand(t, w, "perceive", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, `"role": "Application"`)
	assert.Contains(t, out, `"title": "Notes"`)
	assert.Contains(t, out, `"value": "PID: 42"`)
	assert.NotContains(t, out, `"title": "Deskpilot"`, "the agent's own process is skipped")
}

func TestPerceiveCmd_NoPlatform(t *testing.T) {
	w := newWorkspace(t, "", false)

	_, err := executeCommand(t, w, "perceive")
	assert.ErrorIs(t, err, errNoPlatform)
}

func TestPerceiveCmd_SnapshotFlag(t *testing.T) {
	empty := newWorkspace(t, "", false)
	withSnapshot := newWorkspace(t, notesSnapshot, false)

	out, err := executeCommand(t, empty, "perceive", "--snapshot", withSnapshot.snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Current App: Notes")
}

var runIDPattern = regexp.MustCompile(`Run ID: (\S+)`)

func TestRunCmd_DoneAndHistory(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, true)
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierPowerful && req.Options.ForceJSONFormat
	})).Return(`{"next_goal":"finish","action":[{"done":{"success":true,"text":"All set"}}]}`, nil).Once()
	stubLLM(t, llm)

	out, err := executeCommand(t, w, "run", "open", "Notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Task succeeded after 1 steps (done).")
	assert.Contains(t, out, "All set")
	llm.AssertExpectations(t)

	match := runIDPattern.FindStringSubmatch(out)
	require.Len(t, match, 2)
	runID := match[1]

	out, err = executeCommand(t, w, "history")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "open Notes")

	out, err = executeCommand(t, w, "history", "--run", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Step 1 [Notes] attempt 1")
	assert.Contains(t, out, "All set")
}

func TestRunCmd_PermissionDenied(t *testing.T) {
	w := newWorkspace(t, `{"frontmost": "Notes", "trusted": false, "apps": []}`, false)
	stubLLM(t, new(MockLLMClient))

	_, err := executeCommand(t, w, "run", "open", "Notes")
	assert.ErrorIs(t, err, agent.ErrPermissionDenied)
}

func TestRunCmd_RequiresTask(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)
	_, err := executeCommand(t, w, "run")
	assert.Error(t, err)
}

func TestHistoryCmd_Disabled(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)
	_, err := executeCommand(t, w, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is disabled")
}

func TestHistoryCmd_Empty(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, true)
	out, err := executeCommand(t, w, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestVoiceCmd_ReplyAndFinish(t *testing.T) {
	w := newWorkspace(t, notesSnapshot, false)
	t.Setenv("DESKPILOT_VOICE_SILENCE_DEBOUNCE", "10ms")

	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		conv := req.Conversation()
		return req.Tier == schemas.TierFast &&
			len(conv) > 0 && conv[len(conv)-1].Text == "what time is it"
	})).Return(`{"Type":"Reply","Reply":"It is noon.","Should End":"Finished"}`, nil).Once()
	stubLLM(t, llm)

	out, err := executeCommandWithInput(t, w, "what time is it\n", "voice")
	require.NoError(t, err)
	assert.Contains(t, out, "Deskpilot: It is noon.")
	llm.AssertExpectations(t)
}

func TestDictateCmd_CorrectsTranscript(t *testing.T) {
	w := newWorkspace(t, "", false)
	t.Setenv("DESKPILOT_VOICE_DICTATION_TAIL", "1ms")

	out, err := executeCommandWithInput(t, w, "Hello World\nHello\n", "dictate")
	require.NoError(t, err)
	assert.Contains(t, out, "Dictated: Hello\n")
	assert.Contains(t, out, `Field: "Hello"`)
}

func TestDictateCmd_NoFocusedField(t *testing.T) {
	w := newWorkspace(t, "", false)
	t.Setenv("DESKPILOT_VOICE_DICTATION_TAIL", "1ms")

	out, err := executeCommandWithInput(t, w, "Hello\n", "dictate", "--focused-role", "AXButton")
	require.NoError(t, err)
	assert.Contains(t, out, "No text detected.")
	assert.Contains(t, out, `Field: ""`)
}
