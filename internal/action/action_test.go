package action

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{"tap", `{"tap": {"index": 7}}`, Tap{Index: 7}},
		{"type", `{"type": {"text": "Hello"}}`, Type{Text: "Hello"}},
		{"press_key", `{"press_key": {"key": "enter"}}`, PressKey{Key: "enter"}},
		{"scroll", `{"scroll": {"amount": -300}}`, Scroll{Amount: -300}},
		{"open_app", `{"open_app": {"app_name": "Safari"}}`, OpenApp{AppName: "Safari"}},
		{"wait as string", `{"wait": {"duration": "3"}}`, Wait{Duration: "3"}},
		{"wait as number", `{"wait": {"duration": 3}}`, Wait{Duration: "3"}},
		{"read_file", `{"read_file": {"file_name": "todo.md"}}`, ReadFile{FileName: "todo.md"}},
		{"write_file", `{"write_file": {"file_name": "a.md", "content": "x"}}`, WriteFile{FileName: "a.md", Content: "x"}},
		{"append_file", `{"append_file": {"file_name": "a.md", "content": "y"}}`, AppendFile{FileName: "a.md", Content: "y"}},
		{"speak", `{"speak": {"message": "hi"}}`, Speak{Message: "hi"}},
		{"ask", `{"ask": {"question": "Which account?"}}`, Ask{Question: "Which account?"}},
		{"done", `{"done": {"success": true, "text": "Done"}}`, Done{Success: true, Text: "Done"}},
		{"done with files", `{"done": {"success": false, "text": "x", "files_to_display": ["results.md"]}}`, Done{Text: "x", FilesToDisplay: []string{"results.md"}}},
		{"back empty object", `{"back": {}}`, Back{}},
		{"home null", `{"home": null}`, Home{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown tag", `{"tap_element": {"element_id": 1}}`, ErrUnknownAction},
		{"no tag", `{}`, ErrUnknownAction},
		{"two tags", `{"tap": {"index": 1}, "type": {"text": "x"}}`, ErrAmbiguousAction},
		{"missing field", `{"tap": {}}`, ErrMissingField},
		{"null field", `{"type": {"text": null}}`, ErrMissingField},
		{"null payload", `{"tap": null}`, ErrMissingField},
		{"done missing success", `{"done": {"text": "x"}}`, ErrMissingField},
		{"wrong type", `{"tap": {"index": "seven"}}`, ErrInvalidPayload},
		{"unknown field", `{"scroll": {"amount": 1, "direction": "up"}}`, ErrInvalidPayload},
		{"fields on back", `{"back": {"steps": 2}}`, ErrInvalidPayload},
		{"scalar payload", `{"tap": 7}`, ErrInvalidPayload},
		{"not an object", `["tap"]`, ErrInvalidPayload},
		{"wait with bool", `{"wait": {"duration": true}}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWaitSeconds(t *testing.T) {
	assert.Equal(t, 5, FlexString("5").Seconds(2, 60))
	assert.Equal(t, 0, FlexString("0").Seconds(2, 60))
	assert.Equal(t, 2, FlexString("1.5").Seconds(2, 60), "fractions fall back to the default")
	assert.Equal(t, 2, FlexString("1e3").Seconds(2, 60))
	assert.Equal(t, 2, FlexString("soon").Seconds(2, 60))
	assert.Equal(t, 2, FlexString("").Seconds(2, 60))
	assert.Equal(t, 2, FlexString("-4").Seconds(2, 60))
	assert.Equal(t, 60, FlexString("61").Seconds(2, 60))
	assert.Equal(t, 60, FlexString("9223372036854775807").Seconds(2, 60))
	assert.Equal(t, 2, FlexString("99999999999999999999999").Seconds(2, 60), "out of range is not a number")
}

func TestMarshal(t *testing.T) {
	raw, err := Marshal(Tap{Index: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tap": {"index": 4}}`, string(raw))

	raw, err = Marshal(Home{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"home": {}}`, string(raw))
}

func TestParseAgentOutput(t *testing.T) {
	t.Run("fenced block with prose", func(t *testing.T) {
		reply := "Sure, here you go:\n```json\n" +
			`{"thinking": "t", "evaluation_previous_goal": "ok", "memory": "m", "next_goal": "g",
			  "action": [{"tap": {"index": 7}}, {"type": {"text": "Hello"}}]}` +
			"\n```\nGood luck."
		out, err := ParseAgentOutput(reply)
		require.NoError(t, err)
		assert.Equal(t, "t", out.Thinking)
		assert.Equal(t, "ok", out.EvaluationPreviousGoal)
		assert.Equal(t, "m", out.Memory)
		assert.Equal(t, "g", out.NextGoal)
		assert.Equal(t, []Action{Tap{Index: 7}, Type{Text: "Hello"}}, out.Actions)
	})

	t.Run("bare object with surrounding text", func(t *testing.T) {
		out, err := ParseAgentOutput(`Output: {"action":[{"done":{"success":true,"text":"Done"}}]} end`)
		require.NoError(t, err)
		assert.Equal(t, []Action{Done{Success: true, Text: "Done"}}, out.Actions)
	})

	t.Run("empty action list", func(t *testing.T) {
		_, err := ParseAgentOutput(`{"memory": "m", "action": []}`)
		assert.ErrorIs(t, err, ErrEmptyActionList)
		_, err = ParseAgentOutput(`{"memory": "m"}`)
		assert.ErrorIs(t, err, ErrEmptyActionList)
	})

	t.Run("bad action fails the whole output", func(t *testing.T) {
		_, err := ParseAgentOutput(`{"action": [{"tap": {"index": 1}}, {"fly": {}}]}`)
		assert.ErrorIs(t, err, ErrUnknownAction)
		assert.Contains(t, err.Error(), "action 2")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseAgentOutput(`{"action": [`)
		assert.Error(t, err)
		_, err = ParseAgentOutput("I cannot help with that.")
		assert.Error(t, err)
	})

	t.Run("wrong top-level types", func(t *testing.T) {
		_, err := ParseAgentOutput(`{"memory": 3, "action": [{"back": {}}]}`)
		assert.Error(t, err)
	})
}

func TestAgentOutputMarshalJSON(t *testing.T) {
	out := AgentOutput{NextGoal: "g", Actions: []Action{Scroll{Amount: 100}, Wait{Duration: "2"}}}
	raw, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"next_goal":"g","action":[{"scroll":{"amount":100}},{"wait":{"duration":"2"}}]}`, string(raw))

	back, err := ParseAgentOutput(string(raw))
	require.NoError(t, err)
	assert.Equal(t, out.Actions, back.Actions)
}

func TestCatalogue(t *testing.T) {
	cat := Catalogue()

	for _, s := range Definitions() {
		assert.Contains(t, cat, "<name>"+string(s.Name)+"</name>", "every action in the table is listed")
	}
	assert.Contains(t, cat, "<action>\n  <name>tap</name>\n  <description>Click on an interactive element by its numeric index.</description>\n  <parameters>\n     <param><name>index</name><type>Int</type><description>The [x] index from screen_state.</description></param>\n  </parameters>\n</action>")
	assert.Contains(t, cat, "<type>List<String></type>")
	// Parameterless actions have no parameters block.
	assert.Contains(t, cat, "<name>home</name>\n  <description>Go to the home screen. Not supported on this platform.</description>\n</action>")
	assert.False(t, strings.HasSuffix(cat, "\n"))
}

func TestLookup(t *testing.T) {
	s, ok := Lookup(KindDone)
	require.True(t, ok)
	require.Len(t, s.Params, 3)
	assert.True(t, s.Params[2].Optional)

	_, ok = Lookup("launch_intent")
	assert.False(t, ok)
}
