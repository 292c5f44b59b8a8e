// internal/action/action.go
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownAction is returned for an action object whose tag is not in
	// the vocabulary, or that carries no tag at all.
	ErrUnknownAction = errors.New("unknown action")
	// ErrAmbiguousAction is returned when one action object carries more
	// than one tag.
	ErrAmbiguousAction = errors.New("action object must contain exactly one action")
	// ErrEmptyActionList is returned when the model output has no actions.
	ErrEmptyActionList = errors.New("action list is empty")
	// ErrMissingField is returned when a required parameter is absent or null.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidPayload is returned when a payload has the wrong shape or types.
	ErrInvalidPayload = errors.New("invalid action payload")
)

// Kind is the wire tag of an action.
type Kind string

const (
	KindTap        Kind = "tap"
	KindType       Kind = "type"
	KindPressKey   Kind = "press_key"
	KindScroll     Kind = "scroll"
	KindOpenApp    Kind = "open_app"
	KindWait       Kind = "wait"
	KindReadFile   Kind = "read_file"
	KindWriteFile  Kind = "write_file"
	KindAppendFile Kind = "append_file"
	KindSpeak      Kind = "speak"
	KindAsk        Kind = "ask"
	KindDone       Kind = "done"
	KindBack       Kind = "back"
	KindHome       Kind = "home"
)

// Action is one agent-issuable operation. The set of implementations is
// closed; each variant is a plain value.
type Action interface {
	Kind() Kind
	isAction()
}

// Tap clicks the element at an index of the current screen analysis.
type Tap struct {
	Index int `json:"index"`
}

// Type sends text to the focused control.
type Type struct {
	Text string `json:"text"`
}

// PressKey presses one named key.
type PressKey struct {
	Key string `json:"key"`
}

// Scroll scrolls the screen; positive amounts scroll down.
type Scroll struct {
	Amount int `json:"amount"`
}

// OpenApp launches or focuses an application.
type OpenApp struct {
	AppName string `json:"app_name"`
}

// Wait pauses the step. Duration is in seconds and may arrive as a string
// or a number.
type Wait struct {
	Duration FlexString `json:"duration"`
}

// ReadFile reads a file from the task store.
type ReadFile struct {
	FileName string `json:"file_name"`
}

// WriteFile overwrites a file in the task store.
type WriteFile struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// AppendFile appends to a file in the task store.
type AppendFile struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Speak says a message aloud.
type Speak struct {
	Message string `json:"message"`
}

// Ask blocks on a question to the user.
type Ask struct {
	Question string `json:"question"`
}

// Done ends the task.
type Done struct {
	Success        bool     `json:"success"`
	Text           string   `json:"text"`
	FilesToDisplay []string `json:"files_to_display,omitempty"`
}

// Back is the OS back gesture.
type Back struct{}

// Home is the OS home gesture.
type Home struct{}

func (Tap) Kind() Kind        { return KindTap }
func (Type) Kind() Kind       { return KindType }
func (PressKey) Kind() Kind   { return KindPressKey }
func (Scroll) Kind() Kind     { return KindScroll }
func (OpenApp) Kind() Kind    { return KindOpenApp }
func (Wait) Kind() Kind       { return KindWait }
func (ReadFile) Kind() Kind   { return KindReadFile }
func (WriteFile) Kind() Kind  { return KindWriteFile }
func (AppendFile) Kind() Kind { return KindAppendFile }
func (Speak) Kind() Kind      { return KindSpeak }
func (Ask) Kind() Kind        { return KindAsk }
func (Done) Kind() Kind       { return KindDone }
func (Back) Kind() Kind       { return KindBack }
func (Home) Kind() Kind       { return KindHome }

func (Tap) isAction()        {}
func (Type) isAction()       {}
func (PressKey) isAction()   {}
func (Scroll) isAction()     {}
func (OpenApp) isAction()    {}
func (Wait) isAction()       {}
func (ReadFile) isAction()   {}
func (WriteFile) isAction()  {}
func (AppendFile) isAction() {}
func (Speak) isAction()      {}
func (Ask) isAction()        {}
func (Done) isAction()       {}
func (Back) isAction()       {}
func (Home) isAction()       {}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", s)
	}
	*f = FlexString(s)
	return nil
}

// Seconds parses the value as a whole number of seconds, capped at limit.
// Any value that is not a non-negative integer, fractions included, yields
// def.
func (f FlexString) Seconds(def, limit int) int {
	v, err := strconv.Atoi(strings.TrimSpace(string(f)))
	if err != nil || v < 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
