package engine

import (
	"fmt"
	"unicode/utf8"
)

// Refresh invalidates the cached context and, when the session is enabled
// and the client supports surrounding text, refetches it from the host.
func (e *Engine) Refresh() {
	supported := e.supportsSurroundingText()
	e.log.Debug("reset context", "client_supports_surrounding_text", supported)

	e.clearContext()
	if !e.enabled || !supported {
		return
	}

	text, cursor, anchor := e.host.SurroundingText()
	e.log.Debug("fetched surrounding text",
		"text", text, "cursor_pos", cursor, "anchor_pos", anchor)
	e.setContext(prefix(text, cursor))
}

func (e *Engine) setContext(s string) {
	e.context = &s
}

func (e *Engine) clearContext() {
	e.context = nil
}

// prefix returns the first n codepoints of s. n past the end of s yields
// all of s.
func prefix(s string, n uint32) string {
	if n == 0 {
		return ""
	}
	var count uint32
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// runeCount is the codepoint length of the cached context, 0 when absent.
func (e *Engine) runeCount() int {
	if e.context == nil {
		return 0
	}
	return utf8.RuneCountInString(*e.context)
}

func hex(v uint32) string {
	return fmt.Sprintf("%#x", v)
}
