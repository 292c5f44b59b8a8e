package input

import "strings"

// Virtual key codes for the keys the agent may press by name.
const (
	KeyCodeReturn        KeyCode = 0x24
	KeyCodeTab           KeyCode = 0x30
	KeyCodeSpace         KeyCode = 0x31
	KeyCodeDelete        KeyCode = 0x33
	KeyCodeEscape        KeyCode = 0x35
	KeyCodeCommand       KeyCode = 0x37
	KeyCodeShift         KeyCode = 0x38
	KeyCodeCapsLock      KeyCode = 0x39
	KeyCodeOption        KeyCode = 0x3A
	KeyCodeControl       KeyCode = 0x3B
	KeyCodeHome          KeyCode = 0x73
	KeyCodePageUp        KeyCode = 0x74
	KeyCodeForwardDelete KeyCode = 0x75
	KeyCodeEnd           KeyCode = 0x77
	KeyCodePageDown      KeyCode = 0x79
	KeyCodeLeft          KeyCode = 0x7B
	KeyCodeRight         KeyCode = 0x7C
	KeyCodeDown          KeyCode = 0x7D
	KeyCodeUp            KeyCode = 0x7E
)

var keyCodes = map[string]KeyCode{
	// Letters
	"a": 0x00, "s": 0x01, "d": 0x02, "f": 0x03, "h": 0x04, "g": 0x05, "z": 0x06,
	"x": 0x07, "c": 0x08, "v": 0x09, "b": 0x0B, "q": 0x0C, "w": 0x0D, "e": 0x0E,
	"r": 0x0F, "y": 0x10, "t": 0x11, "o": 0x1F, "u": 0x20, "i": 0x22, "p": 0x23,
	"l": 0x25, "j": 0x26, "k": 0x28, "n": 0x2D, "m": 0x2E,

	// Digits
	"1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "6": 0x16, "5": 0x17,
	"9": 0x19, "7": 0x1A, "8": 0x1C, "0": 0x1D,

	// Editing and navigation
	"return":        KeyCodeReturn,
	"enter":         KeyCodeReturn,
	"tab":           KeyCodeTab,
	"space":         KeyCodeSpace,
	"delete":        KeyCodeDelete,
	"backspace":     KeyCodeDelete,
	"escape":        KeyCodeEscape,
	"esc":           KeyCodeEscape,
	"forwarddelete": KeyCodeForwardDelete,
	"home":          KeyCodeHome,
	"end":           KeyCodeEnd,
	"pageup":        KeyCodePageUp,
	"pagedown":      KeyCodePageDown,
	"left":          KeyCodeLeft,
	"arrowleft":     KeyCodeLeft,
	"right":         KeyCodeRight,
	"arrowright":    KeyCodeRight,
	"down":          KeyCodeDown,
	"arrowdown":     KeyCodeDown,
	"up":            KeyCodeUp,
	"arrowup":       KeyCodeUp,

	// Function keys
	"f1": 0x7A, "f2": 0x78, "f3": 0x63, "f4": 0x76, "f5": 0x60, "f6": 0x61,
	"f7": 0x62, "f8": 0x64, "f9": 0x65, "f10": 0x6D, "f11": 0x67, "f12": 0x6F,

	// Modifiers
	"command":  KeyCodeCommand,
	"cmd":      KeyCodeCommand,
	"shift":    KeyCodeShift,
	"option":   KeyCodeOption,
	"alt":      KeyCodeOption,
	"control":  KeyCodeControl,
	"ctrl":     KeyCodeControl,
	"capslock": KeyCodeCapsLock,
}

// LookupKey resolves a key name case-insensitively.
func LookupKey(name string) (KeyCode, bool) {
	code, ok := keyCodes[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}
