package ibus

import (
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"ibus-bugtest/internal/engine"
	"ibus-bugtest/internal/logging"
)

// SessionStats counts host traffic for one session.
type SessionStats struct {
	KeyEvents         uint64 `json:"key_events"`
	Commits           uint64 `json:"commits"`
	Deletes           uint64 `json:"deletes"`
	ForwardedKeys     uint64 `json:"forwarded_keys"`
	SurroundingPushes uint64 `json:"surrounding_pushes"`
	EmitErrors        uint64 `json:"emit_errors"`
}

// LogValue implements slog.LogValuer.
func (st SessionStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("key_events", st.KeyEvents),
		slog.Uint64("commits", st.Commits),
		slog.Uint64("deletes", st.Deletes),
		slog.Uint64("forwarded_keys", st.ForwardedKeys),
		slog.Uint64("surrounding_pushes", st.SurroundingPushes),
		slog.Uint64("emit_errors", st.EmitErrors),
	)
}

// ContentType is the client's input purpose and hints (IBusInputPurpose,
// IBusInputHints).
type ContentType struct {
	Purpose uint32
	Hints   uint32
}

// Session is one engine instance created by the factory. It implements
// engine.Host by emitting IBus signals on its object path.
type Session struct {
	path    dbus.ObjectPath
	emitter Emitter
	log     *slog.Logger
	crash   *logging.CrashHandler

	// mu serializes D-Bus calls into the engine. Host methods run with
	// mu already held.
	mu     sync.Mutex
	engine *engine.Engine

	caps        engine.Capability
	surrounding struct {
		text           string
		cursor, anchor uint32
		valid          bool
	}
	contentType ContentType
	enabled     bool
	focused     bool
	stats       SessionStats
}

// SessionOptions configures new sessions.
type SessionOptions struct {
	TriggerKey uint32
	Logger     *slog.Logger

	// Crash, when set, recovers panics raised while handling a bus call.
	Crash *logging.CrashHandler
}

// NewSession creates a session bound to path. Signals go through emitter.
func NewSession(path dbus.ObjectPath, emitter Emitter, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(slog.String("engine_path", string(path)))

	s := &Session{
		path:    path,
		emitter: emitter,
		log:     log,
		crash:   opts.Crash,
	}
	s.engine = engine.New(s, defaultBehavior{s}, engine.Options{
		TriggerKey: opts.TriggerKey,
		Logger:     log,
	})
	return s
}

// Path returns the session's object path.
func (s *Session) Path() dbus.ObjectPath {
	return s.path
}

// Engine returns the engine driven by this session. Callers outside the
// D-Bus dispatch must hold the session via Do.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Do runs fn with the session lock held.
func (s *Session) Do(fn func(e *engine.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverCall("Do")
	fn(s.engine)
}

// recoverCall must be deferred directly by a method holding s.mu. Without
// a crash handler the panic goes through.
func (s *Session) recoverCall(method string) {
	if s.crash == nil {
		return
	}
	if r := recover(); r != nil {
		s.crash.HandlePanic(r, map[string]any{
			"method":      method,
			"engine_path": string(s.path),
			"stats":       s.stats,
		})
	}
}

// ContentType returns the last content type the client set.
func (s *Session) ContentType() ContentType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentType
}

func (s *Session) setContentType(ct ContentType) {
	s.mu.Lock()
	s.contentType = ct
	s.mu.Unlock()
	s.log.Debug("set content type", "purpose", ct.Purpose, "hints", ct.Hints)
}

// properties is the org.freedesktop.DBus.Properties table of the engine
// object. ibus-daemon 1.5 sets ContentType through it.
func (s *Session) properties() prop.Map {
	return prop.Map{
		IBusEngineInterface: {
			"ContentType": {
				Value:    &ContentType{},
				Writable: true,
				Emit:     prop.EmitFalse,
				Callback: func(c *prop.Change) *dbus.Error {
					var ct ContentType
					if err := dbus.Store([]interface{}{c.Value}, &ct); err != nil {
						return dbus.MakeFailedError(err)
					}
					s.setContentType(ct)
					return nil
				},
			},
		},
	}
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Capabilities implements engine.Host.
func (s *Session) Capabilities() engine.Capability {
	return s.caps
}

// RequestSurroundingText implements engine.Host.
func (s *Session) RequestSurroundingText() {
	s.emit(signalRequireSurroundingText)
}

// SurroundingText implements engine.Host. Like the stock IBus engine it
// answers from the last snapshot the client pushed and asks the client to
// keep pushing.
func (s *Session) SurroundingText() (string, uint32, uint32) {
	s.emit(signalRequireSurroundingText)
	if !s.surrounding.valid {
		return "", 0, 0
	}
	return s.surrounding.text, s.surrounding.cursor, s.surrounding.anchor
}

// DeleteSurroundingText implements engine.Host.
func (s *Session) DeleteSurroundingText(offset int32, nchars uint32) {
	s.stats.Deletes++
	s.emit(signalDeleteSurroundingText, offset, nchars)
}

// ForwardKeyEvent implements engine.Host.
func (s *Session) ForwardKeyEvent(keyval, keycode, state uint32) {
	s.stats.ForwardedKeys++
	s.emit(signalForwardKeyEvent, keyval, keycode, state)
}

// CommitText implements engine.Host.
func (s *Session) CommitText(text string) {
	s.stats.Commits++
	s.emit(signalCommitText, EncodeText(text))
}

func (s *Session) emit(name string, values ...interface{}) {
	if err := s.emitter.Emit(s.path, name, values...); err != nil {
		s.stats.EmitErrors++
		s.log.Warn("emit signal failed", "signal", name, "error", err)
	}
}

// defaultBehavior is what a stock IBus engine does for each lifecycle
// hook. The engine calls it explicitly.
type defaultBehavior struct {
	s *Session
}

func (d defaultBehavior) Enable() {
	d.s.enabled = true
}

func (d defaultBehavior) Disable() {
	d.s.enabled = false
}

func (d defaultBehavior) FocusIn() {
	d.s.focused = true
}

func (d defaultBehavior) FocusOut() {
	d.s.focused = false
}

func (d defaultBehavior) SetSurroundingText(text string, cursor, anchor uint32) {
	d.s.surrounding.text = text
	d.s.surrounding.cursor = cursor
	d.s.surrounding.anchor = anchor
	d.s.surrounding.valid = true
}

// engineObject is the org.freedesktop.IBus.Engine surface of a session.
type engineObject struct {
	s *Session
}

// ProcessKeyEvent returns true when the key was consumed.
func (o engineObject) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverCall("ProcessKeyEvent")

	if state&engine.ReleaseMask == 0 {
		s.stats.KeyEvents++
	}
	return s.engine.ProcessKeyEvent(keyval, keycode, state), nil
}

func (o engineObject) FocusIn() *dbus.Error {
	o.s.Do((*engine.Engine).FocusIn)
	return nil
}

func (o engineObject) FocusOut() *dbus.Error {
	o.s.Do((*engine.Engine).FocusOut)
	return nil
}

// FocusInId is the IBus 1.5.27 variant of FocusIn carrying the client's
// object path and name.
func (o engineObject) FocusInId(objectPath, client string) *dbus.Error {
	o.s.log.Debug("focus in", "object_path", objectPath, "client", client)
	return o.FocusIn()
}

func (o engineObject) Reset() *dbus.Error {
	o.s.Do((*engine.Engine).Reset)
	return nil
}

func (o engineObject) Enable() *dbus.Error {
	o.s.Do((*engine.Engine).Enable)
	return nil
}

func (o engineObject) Disable() *dbus.Error {
	o.s.Do((*engine.Engine).Disable)
	return nil
}

// SetCapabilities stores the client capability set.
func (o engineObject) SetCapabilities(caps uint32) *dbus.Error {
	s := o.s
	s.mu.Lock()
	s.caps = engine.Capability(caps)
	s.mu.Unlock()

	s.log.Debug("set capabilities", "caps", engine.Capability(caps).String())
	return nil
}

// SetSurroundingText receives a snapshot pushed by the client.
func (o engineObject) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	str, err := DecodeText(text)
	if err != nil {
		o.s.log.Warn("bad surrounding text", "error", err)
		return dbus.MakeFailedError(err)
	}

	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverCall("SetSurroundingText")

	s.stats.SurroundingPushes++
	s.engine.SetSurroundingText(str, cursorPos, anchorPos)
	return nil
}

func (o engineObject) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetContentType is the method form used by daemons before 1.5. Newer
// daemons set the ContentType property instead.
func (o engineObject) SetContentType(purpose, hints uint32) *dbus.Error {
	o.s.setContentType(ContentType{Purpose: purpose, Hints: hints})
	return nil
}

func (o engineObject) PropertyActivate(name string, state uint32) *dbus.Error {
	o.s.log.Debug("property activate", "name", name, "state", state)
	return nil
}

func (o engineObject) PropertyShow(name string) *dbus.Error {
	return nil
}

func (o engineObject) PropertyHide(name string) *dbus.Error {
	return nil
}

func (o engineObject) PageUp() *dbus.Error {
	return nil
}

func (o engineObject) PageDown() *dbus.Error {
	return nil
}

func (o engineObject) CursorUp() *dbus.Error {
	return nil
}

func (o engineObject) CursorDown() *dbus.Error {
	return nil
}

func (o engineObject) CandidateClicked(index, button, state uint32) *dbus.Error {
	return nil
}

// serviceObject is the org.freedesktop.IBus.Service surface of a session.
type serviceObject struct {
	s       *Session
	destroy func(dbus.ObjectPath)
}

// Destroy tears the session down and removes it from the bus.
func (o serviceObject) Destroy() *dbus.Error {
	o.s.Do((*engine.Engine).Destroy)
	if o.destroy != nil {
		o.destroy(o.s.path)
	}
	return nil
}
