package action

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
	strict = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		DisallowUnknownFields:  true,
	}.Froze()
)

func decodeAs[T Action](raw []byte) (Action, error) {
	var v T
	if err := strict.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses a single tagged action object such as {"tap": {"index": 3}}.
// The object must carry exactly one known tag, every required parameter and
// no parameters outside the schema.
func Decode(raw []byte) (Action, error) {
	var obj map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: action must be a JSON object: %v", ErrInvalidPayload, err)
	}

	switch len(obj) {
	case 0:
		return nil, fmt.Errorf("%w: no action tag", ErrUnknownAction)
	case 1:
	default:
		tags := make([]string, 0, len(obj))
		for k := range obj {
			tags = append(tags, k)
		}
		sort.Strings(tags)
		return nil, fmt.Errorf("%w: got %s", ErrAmbiguousAction, strings.Join(tags, ", "))
	}

	var (
		tag     string
		payload jsoniter.RawMessage
	)
	for k, v := range obj {
		tag, payload = k, v
	}

	def, ok := definitionIndex[Kind(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, tag)
	}
	if err := checkFields(def, payload); err != nil {
		return nil, err
	}

	a, err := def.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, tag, err)
	}
	return a, nil
}

// checkFields enforces required and known parameters before typed decoding.
func checkFields(def *Definition, payload []byte) error {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: %s: payload must be an object", ErrInvalidPayload, def.Name)
	}

	known := make(map[string]struct{}, len(def.Params))
	for _, p := range def.Params {
		known[p.Name] = struct{}{}
		if p.Optional {
			continue
		}
		v, ok := fields[p.Name]
		if !ok || strings.TrimSpace(string(v)) == "null" {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, def.Name, p.Name)
		}
	}
	for name := range fields {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: %s: unknown field %q", ErrInvalidPayload, def.Name, name)
		}
	}
	return nil
}

// Marshal encodes an action in its tagged wire form.
func Marshal(a Action) ([]byte, error) {
	return json.Marshal(map[Kind]Action{a.Kind(): a})
}

// AgentOutput is one decision from the model.
type AgentOutput struct {
	Thinking               string
	EvaluationPreviousGoal string
	Memory                 string
	NextGoal               string
	Actions                []Action
}

type wireOutput struct {
	Thinking               string                `json:"thinking,omitempty"`
	EvaluationPreviousGoal string                `json:"evaluation_previous_goal,omitempty"`
	Memory                 string                `json:"memory,omitempty"`
	NextGoal               string                `json:"next_goal,omitempty"`
	Action                 []jsoniter.RawMessage `json:"action"`
}

// MarshalJSON encodes the output in the same shape the model produces.
func (o AgentOutput) MarshalJSON() ([]byte, error) {
	w := wireOutput{
		Thinking:               o.Thinking,
		EvaluationPreviousGoal: o.EvaluationPreviousGoal,
		Memory:                 o.Memory,
		NextGoal:               o.NextGoal,
		Action:                 make([]jsoniter.RawMessage, 0, len(o.Actions)),
	}
	for _, a := range o.Actions {
		raw, err := Marshal(a)
		if err != nil {
			return nil, err
		}
		w.Action = append(w.Action, raw)
	}
	return json.Marshal(w)
}

// A regex to extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// ExtractJSON pulls the JSON object out of a model reply, handling fenced
// code blocks and surrounding prose.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

// ParseAgentOutput decodes a model reply into an AgentOutput. Every action
// must decode and the list must not be empty.
func ParseAgentOutput(response string) (*AgentOutput, error) {
	payload := ExtractJSON(response)
	if payload == "" {
		return nil, fmt.Errorf("could not find any JSON in the LLM response")
	}

	var w wireOutput
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent output: %w", err)
	}
	if len(w.Action) == 0 {
		return nil, ErrEmptyActionList
	}

	out := &AgentOutput{
		Thinking:               w.Thinking,
		EvaluationPreviousGoal: w.EvaluationPreviousGoal,
		Memory:                 w.Memory,
		NextGoal:               w.NextGoal,
		Actions:                make([]Action, 0, len(w.Action)),
	}
	for i, raw := range w.Action {
		a, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		out.Actions = append(out.Actions, a)
	}
	return out, nil
}
