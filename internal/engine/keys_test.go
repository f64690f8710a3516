package engine

import "testing"

// TestKeyvalToRune tests the X11 keysym to rune conversion.
func TestKeyvalToRune(t *testing.T) {
	tests := []struct {
		name   string
		keyval uint32
		want   rune
	}{
		// ASCII printable characters
		{"space", 0x20, ' '},
		{"letter A", 0x41, 'A'},
		{"letter x", 0x78, 'x'},
		{"digit 9", 0x39, '9'},
		{"tilde", 0x7e, '~'},

		// Extended Latin
		{"nbsp", 0xa0, '\u00a0'},
		{"e acute", 0xe9, 'é'},
		{"y diaeresis", 0xff, 'ÿ'},

		// Unicode keysyms
		{"unicode euro", 0x010020ac, '€'},
		{"unicode heart", 0x01002665, '♥'},

		// Non-character keys
		{"backspace", KeyBackSpace, 0},
		{"return", KeyReturn, 0},
		{"escape", KeyEscape, 0},
		{"function key", 0xffbe, 0},
		{"control char", 0x1f, 0},
		{"out of range unicode", 0x01110000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeyvalToRune(tt.keyval)
			if got != tt.want {
				t.Errorf("KeyvalToRune(0x%x) = %q, want %q", tt.keyval, got, tt.want)
			}
		})
	}
}

func TestRuneToKeyval(t *testing.T) {
	for _, r := range []rune{'x', 'Z', ' ', 'é', '€', '日', '🙂'} {
		kv := RuneToKeyval(r)
		if kv == 0 {
			t.Fatalf("RuneToKeyval(%q) = 0", r)
		}
		if got := KeyvalToRune(kv); got != r {
			t.Errorf("KeyvalToRune(RuneToKeyval(%q)) = %q", r, got)
		}
	}

	if kv := RuneToKeyval('\n'); kv != 0 {
		t.Errorf("RuneToKeyval(newline) = 0x%x, want 0", kv)
	}
}

func TestCapabilityString(t *testing.T) {
	tests := []struct {
		caps Capability
		want string
	}{
		{0, "none"},
		{CapSurroundingText, "surrounding-text"},
		{CapPreeditText | CapFocus | CapSurroundingText, "preedit-text|focus|surrounding-text"},
	}

	for _, tt := range tests {
		if got := tt.caps.String(); got != tt.want {
			t.Errorf("Capability(%d).String() = %q, want %q", uint32(tt.caps), got, tt.want)
		}
	}
}

func TestModifierMasks(t *testing.T) {
	if ShiftMask != 1 {
		t.Errorf("Expected ShiftMask = 1, got %d", ShiftMask)
	}
	if ControlMask != 4 {
		t.Errorf("Expected ControlMask = 4, got %d", ControlMask)
	}
	if ReleaseMask != 1<<30 {
		t.Errorf("Expected ReleaseMask = 1<<30, got %d", ReleaseMask)
	}
	if CapSurroundingText != 32 {
		t.Errorf("Expected CapSurroundingText = 32, got %d", CapSurroundingText)
	}
}
