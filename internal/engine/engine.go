// Package engine implements the surrounding-text tracker and key handler
// behind the bugtest input method.
//
// An Engine caches the text between the start of the client's buffer and
// the cursor (the "context"). The cache is filled on focus-in, on host
// pushes and lazily on the first key press. Pressing the trigger key
// deletes the character before the cursor and commits the uppercased last
// character of the cached context in its place.
//
// The engine never refreshes its own cache after committing text. It relies
// on the client pushing a new surrounding-text snapshot, which is exactly
// the behavior the engine exists to exercise.
package engine

import (
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Host is the outbound surface of the input method framework.
type Host interface {
	// Capabilities returns the capability set advertised by the client.
	Capabilities() Capability

	// RequestSurroundingText asks the client to start pushing surrounding
	// text. It returns without waiting for an answer.
	RequestSurroundingText()

	// SurroundingText returns the latest snapshot known to the host.
	SurroundingText() (text string, cursor, anchor uint32)

	DeleteSurroundingText(offset int32, nchars uint32)
	ForwardKeyEvent(keyval, keycode, state uint32)
	CommitText(text string)
}

// Base is the framework's default engine behavior. Engine handlers call it
// explicitly where the framework expects the default action to run.
type Base interface {
	Enable()
	Disable()
	FocusIn()
	FocusOut()
	SetSurroundingText(text string, cursor, anchor uint32)
}

// Options configures an Engine.
type Options struct {
	// TriggerKey is the keysym that triggers delete-and-replace.
	// Defaults to KeyX.
	TriggerKey uint32

	Logger *slog.Logger
}

// Engine is the per-session context tracker and key handler.
// It is not safe for concurrent use; the host serializes calls.
type Engine struct {
	host    Host
	base    Base
	trigger uint32
	log     *slog.Logger
	upper   cases.Caser

	enabled bool
	context *string
}

// New creates an Engine bound to host. base may be nil when the host has
// no default behavior to run.
func New(host Host, base Base, opts Options) *Engine {
	if base == nil {
		base = nopBase{}
	}
	if opts.TriggerKey == 0 {
		opts.TriggerKey = KeyX
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		host:    host,
		base:    base,
		trigger: opts.TriggerKey,
		log:     opts.Logger,
		upper:   cases.Upper(language.Und),
	}
}

// Enabled reports whether the session is active.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// Context returns the cached text before the cursor. ok is false when the
// cache is absent, which is distinct from a known empty context.
func (e *Engine) Context() (ctx string, ok bool) {
	if e.context == nil {
		return "", false
	}
	return *e.context, true
}

// TriggerKey returns the keysym that triggers delete-and-replace.
func (e *Engine) TriggerKey() uint32 {
	return e.trigger
}

// Enable activates the session and asks the client for surrounding text.
func (e *Engine) Enable() {
	e.base.Enable()
	e.enabled = true
	e.log.Debug("enabling surrounding text", "op", "enable")
	e.host.RequestSurroundingText()
}

// Disable deactivates the session and drops the cached context.
func (e *Engine) Disable() {
	e.enabled = false
	e.clearContext()
	e.base.Disable()
}

// FocusIn runs the default focus handling, then refetches the context.
func (e *Engine) FocusIn() {
	e.log.Debug("focus in")
	e.base.FocusIn()
	e.log.Debug("enabling surrounding text", "op", "focus_in")
	e.host.RequestSurroundingText()
	e.Refresh()
}

// FocusOut drops the cached context before the default handling runs.
func (e *Engine) FocusOut() {
	e.clearContext()
	e.base.FocusOut()
}

// Reset is a no-op; the engine keeps no preedit state.
func (e *Engine) Reset() {
	e.log.Debug("reset")
}

// Destroy releases the cached context at session teardown.
func (e *Engine) Destroy() {
	e.clearContext()
	e.enabled = false
}

// SetSurroundingText caches the prefix of a snapshot pushed by the client,
// then hands the snapshot to the default handler.
func (e *Engine) SetSurroundingText(text string, cursor, anchor uint32) {
	e.log.Debug("set surrounding text",
		"text", text, "cursor_pos", cursor, "anchor_pos", anchor)

	e.clearContext()
	if e.enabled {
		e.setContext(prefix(text, cursor))
	}
	e.base.SetSurroundingText(text, cursor, anchor)
}

// ProcessKeyEvent handles a key event and reports whether it was consumed.
func (e *Engine) ProcessKeyEvent(keyval, keycode, state uint32) bool {
	if state&ReleaseMask != 0 {
		return false
	}

	e.log.Debug("processing key event",
		"keyval", hex(keyval), "keycode", hex(keycode), "modifiers", hex(state))

	if e.context == nil {
		e.Refresh()
	}

	if keyval == e.trigger {
		e.deletePrevious()

		if last, ok := e.lastContextRune(); ok {
			e.commit(e.upper.String(string(last)))
			return true
		}
	}

	if r := KeyvalToRune(keyval); r != 0 {
		e.commit(string(r))
	}
	return true
}

// deletePrevious removes the character before the cursor, through the
// surrounding-text API when the client supports it.
func (e *Engine) deletePrevious() {
	if e.supportsSurroundingText() {
		e.log.Debug("deleting surrounding text", "offset", -1, "nchars", 1)
		e.host.DeleteSurroundingText(-1, 1)
		return
	}
	e.log.Debug("sending backspace")
	e.host.ForwardKeyEvent(KeyBackSpace, BackSpaceKeycode, 0)
}

func (e *Engine) lastContextRune() (rune, bool) {
	if e.runeCount() == 0 {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(*e.context)
	return r, true
}

func (e *Engine) commit(text string) {
	e.log.Debug("commit string", "text", text)
	e.host.CommitText(text)
}

func (e *Engine) supportsSurroundingText() bool {
	return e.host.Capabilities().Has(CapSurroundingText)
}

type nopBase struct{}

func (nopBase) Enable()                                   {}
func (nopBase) Disable()                                  {}
func (nopBase) FocusIn()                                  {}
func (nopBase) FocusOut()                                 {}
func (nopBase) SetSurroundingText(string, uint32, uint32) {}
