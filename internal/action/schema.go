package action

import (
	"strings"
)

// Parameter type tags shown in the catalogue.
const (
	TypeInt        = "Int"
	TypeString     = "String"
	TypeBool       = "Bool"
	TypeStringList = "List<String>"
)

// Param describes one action parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Optional    bool
}

// Definition describes one action: its tag, what it does, and its parameters.
// The table drives both decoding and the prompt catalogue.
type Definition struct {
	Name        Kind
	Description string
	Params      []Param

	decode func([]byte) (Action, error)
}

var definitions = []Definition{
	{
		Name:        KindTap,
		Description: "Click on an interactive element by its numeric index.",
		Params:      []Param{{Name: "index", Type: TypeInt, Description: "The [x] index from screen_state."}},
		decode:      decodeAs[Tap],
	},
	{
		Name:        KindType,
		Description: "Type text into the currently focused field.",
		Params:      []Param{{Name: "text", Type: TypeString, Description: "Text to type."}},
		decode:      decodeAs[Type],
	},
	{
		Name:        KindPressKey,
		Description: "Press a single keyboard key (arrow keys, enter, escape, function keys, etc.).",
		Params: []Param{{
			Name:        "key",
			Type:        TypeString,
			Description: "Key name (e.g., 'enter', 'escape', 'left', 'right', 'up', 'down', 'tab', 'space', 'f1', 'home', 'end', 'pageup', 'pagedown')",
		}},
		decode: decodeAs[PressKey],
	},
	{
		Name:        KindScroll,
		Description: "Scroll the screen content.",
		Params:      []Param{{Name: "amount", Type: TypeInt, Description: "Positive for Down, Negative for Up."}},
		decode:      decodeAs[Scroll],
	},
	{
		Name:        KindOpenApp,
		Description: "Launch or switch to an application.",
		Params:      []Param{{Name: "app_name", Type: TypeString, Description: "Name of the app (e.g. 'Safari')."}},
		decode:      decodeAs[OpenApp],
	},
	{
		Name:        KindWait,
		Description: "Wait to let the UI load.",
		Params:      []Param{{Name: "duration", Type: TypeString, Description: "Specify the duration in seconds"}},
		decode:      decodeAs[Wait],
	},
	{
		Name:        KindReadFile,
		Description: "Read contents of a file in documents.",
		Params:      []Param{{Name: "file_name", Type: TypeString, Description: "Name of the file to read."}},
		decode:      decodeAs[ReadFile],
	},
	{
		Name:        KindWriteFile,
		Description: "Overwrite a file in documents.",
		Params: []Param{
			{Name: "file_name", Type: TypeString, Description: "Name of the file."},
			{Name: "content", Type: TypeString, Description: "Content to write."},
		},
		decode: decodeAs[WriteFile],
	},
	{
		Name:        KindAppendFile,
		Description: "Append content to a file in documents.",
		Params: []Param{
			{Name: "file_name", Type: TypeString, Description: "Name of the file."},
			{Name: "content", Type: TypeString, Description: "Content to append."},
		},
		decode: decodeAs[AppendFile],
	},
	{
		Name:        KindSpeak,
		Description: "Speak a message aloud to the user.",
		Params:      []Param{{Name: "message", Type: TypeString, Description: "The text to speak."}},
		decode:      decodeAs[Speak],
	},
	{
		Name:        KindAsk,
		Description: "Ask the user a question and wait for the typed answer.",
		Params:      []Param{{Name: "question", Type: TypeString, Description: "The question to ask."}},
		decode:      decodeAs[Ask],
	},
	{
		Name:        KindDone,
		Description: "Call this when the user task is finished or impossible.",
		Params: []Param{
			{Name: "success", Type: TypeBool, Description: "True if task succeeded."},
			{Name: "text", Type: TypeString, Description: "Final report to user."},
			{Name: "files_to_display", Type: TypeStringList, Description: "Optional list of files to show.", Optional: true},
		},
		decode: decodeAs[Done],
	},
	{
		Name:        KindBack,
		Description: "Navigate back. Not supported on this platform.",
		decode:      decodeAs[Back],
	},
	{
		Name:        KindHome,
		Description: "Go to the home screen. Not supported on this platform.",
		decode:      decodeAs[Home],
	},
}

var definitionIndex = func() map[Kind]*Definition {
	m := make(map[Kind]*Definition, len(definitions))
	for i := range definitions {
		m[definitions[i].Name] = &definitions[i]
	}
	return m
}()

// Definitions returns the action table in catalogue order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of a tag.
func Lookup(kind Kind) (Definition, bool) {
	s, ok := definitionIndex[kind]
	if !ok {
		return Definition{}, false
	}
	return *s, true
}

// Catalogue renders the action table for the system prompt.
func Catalogue() string {
	var b strings.Builder
	for _, s := range definitions {
		b.WriteString("<action>\n")
		b.WriteString("  <name>" + string(s.Name) + "</name>\n")
		b.WriteString("  <description>" + s.Description + "</description>\n")
		if len(s.Params) > 0 {
			b.WriteString("  <parameters>\n")
			for _, p := range s.Params {
				b.WriteString("     <param>")
				b.WriteString("<name>" + p.Name + "</name>")
				b.WriteString("<type>" + p.Type + "</type>")
				if p.Description != "" {
					b.WriteString("<description>" + p.Description + "</description>")
				}
				b.WriteString("</param>\n")
			}
			b.WriteString("  </parameters>\n")
		}
		b.WriteString("</action>\n\n")
	}
	return strings.TrimSpace(b.String())
}
