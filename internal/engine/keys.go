package engine

import "strings"

// Capability mirrors the IBus client capability bitflags.
type Capability uint32

const (
	CapPreeditText     Capability = 1 << 0
	CapAuxiliaryText   Capability = 1 << 1
	CapLookupTable     Capability = 1 << 2
	CapFocus           Capability = 1 << 3
	CapProperty        Capability = 1 << 4
	CapSurroundingText Capability = 1 << 5
)

// Has reports whether every bit of flag is set.
func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

func (c Capability) String() string {
	names := []struct {
		flag Capability
		name string
	}{
		{CapPreeditText, "preedit-text"},
		{CapAuxiliaryText, "auxiliary-text"},
		{CapLookupTable, "lookup-table"},
		{CapFocus, "focus"},
		{CapProperty, "property"},
		{CapSurroundingText, "surrounding-text"},
	}

	var parts []string
	for _, n := range names {
		if c.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Key event state masks.
const (
	ShiftMask   uint32 = 1 << 0
	ControlMask uint32 = 1 << 2
	ReleaseMask uint32 = 1 << 30
)

// Keysyms the engine refers to.
const (
	KeyBackSpace uint32 = 0xff08
	KeyReturn    uint32 = 0xff0d
	KeyEscape    uint32 = 0xff1b
	KeyX         uint32 = 0x0078
)

// BackSpaceKeycode is the evdev scancode forwarded with a synthesized
// BackSpace when the client cannot delete surrounding text.
const BackSpaceKeycode uint32 = 14

const unicodeKeysymOffset = 0x01000000

// KeyvalToRune converts an X11 keysym to the character it produces.
// Returns 0 for keysyms that do not produce a character.
func KeyvalToRune(keyval uint32) rune {
	// Direct Unicode mapping for Latin-1 range
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}

	// Extended Latin (ISO 8859-1)
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}

	// Unicode keysyms (0x01000000 + codepoint)
	if keyval > unicodeKeysymOffset && keyval <= unicodeKeysymOffset+0x10ffff {
		return rune(keyval - unicodeKeysymOffset)
	}

	return 0
}

// RuneToKeyval is the inverse of KeyvalToRune.
func RuneToKeyval(r rune) uint32 {
	switch {
	case r >= 0x20 && r <= 0x7e, r >= 0xa0 && r <= 0xff:
		return uint32(r)
	case r > 0xff && r <= 0x10ffff:
		return unicodeKeysymOffset + uint32(r)
	default:
		return 0
	}
}
