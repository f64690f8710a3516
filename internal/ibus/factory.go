package ibus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// Factory implements org.freedesktop.IBus.Factory. Every CreateEngine call
// gets its own Session and object path.
type Factory struct {
	conn       Conn
	engineName string
	opts       SessionOptions
	log        *slog.Logger

	mu       sync.Mutex
	nextID   uint32
	sessions map[dbus.ObjectPath]*Session
}

// NewFactory creates a factory serving engineName.
func NewFactory(conn Conn, engineName string, opts SessionOptions) *Factory {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if engineName == "" {
		engineName = DefaultEngineName
	}
	return &Factory{
		conn:       conn,
		engineName: engineName,
		opts:       opts,
		log:        log,
		sessions:   make(map[dbus.ObjectPath]*Session),
	}
}

// Export publishes the factory object on the bus.
func (f *Factory) Export() error {
	obj := factoryObject{f}
	if err := f.conn.Export(obj, FactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	node := &introspect.Node{
		Name: string(FactoryPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: IBusFactoryInterface, Methods: introspect.Methods(obj)},
		},
	}
	if err := f.conn.Export(introspect.NewIntrospectable(node), FactoryPath, IntrospectInterface); err != nil {
		return fmt.Errorf("export factory introspection: %w", err)
	}
	return nil
}

// CreateEngine creates a new engine instance for IBus.
func (f *Factory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	f.log.Info("create engine", "name", engineName)

	if engineName != f.engineName {
		return "", dbus.NewError(ErrorNoEngine,
			[]interface{}{"Unknown engine: " + engineName})
	}

	f.mu.Lock()
	f.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("%s/%d", EnginePathBase, f.nextID))
	f.mu.Unlock()

	s := NewSession(path, f.conn, f.opts)
	if err := f.exportSession(s); err != nil {
		f.log.Error("export engine failed", "path", path, "error", err)
		f.unexport(path)
		return "", dbus.MakeFailedError(err)
	}

	f.mu.Lock()
	f.sessions[path] = s
	f.mu.Unlock()

	return path, nil
}

// Session returns the live session at path.
func (f *Factory) Session(path dbus.ObjectPath) (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[path]
	return s, ok
}

// Len returns the number of live sessions.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// Close destroys every live session.
func (f *Factory) Close() {
	f.mu.Lock()
	paths := make([]dbus.ObjectPath, 0, len(f.sessions))
	for p := range f.sessions {
		paths = append(paths, p)
	}
	f.mu.Unlock()

	for _, p := range paths {
		if s, ok := f.Session(p); ok {
			serviceObject{s: s, destroy: f.destroy}.Destroy()
		}
	}
}

func (f *Factory) exportSession(s *Session) error {
	eng := engineObject{s: s}
	svc := serviceObject{s: s, destroy: f.destroy}

	if err := f.conn.Export(eng, s.path, IBusEngineInterface); err != nil {
		return fmt.Errorf("export engine: %w", err)
	}
	if err := f.conn.Export(svc, s.path, IBusServiceInterface); err != nil {
		return fmt.Errorf("export service: %w", err)
	}
	props := s.properties()
	if err := f.conn.ExportProperties(s.path, props); err != nil {
		return fmt.Errorf("export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(s.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       IBusEngineInterface,
				Methods:    introspect.Methods(eng),
				Signals:    engineSignals,
				Properties: propertyIntrospection(props[IBusEngineInterface]),
			},
			{Name: IBusServiceInterface, Methods: introspect.Methods(svc)},
		},
	}
	if err := f.conn.Export(introspect.NewIntrospectable(node), s.path, IntrospectInterface); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// destroy removes a session from the bus and forgets it, logging what the
// session did over its lifetime.
func (f *Factory) destroy(path dbus.ObjectPath) {
	f.mu.Lock()
	s, ok := f.sessions[path]
	delete(f.sessions, path)
	f.mu.Unlock()

	f.unexport(path)
	if ok {
		f.log.Info("destroyed engine", "path", path, "stats", s.Stats())
	}
}

func (f *Factory) unexport(path dbus.ObjectPath) {
	for _, iface := range []string{IBusEngineInterface, IBusServiceInterface, PropertiesInterface, IntrospectInterface} {
		if err := f.conn.Export(nil, path, iface); err != nil {
			f.log.Warn("unexport failed", "path", path, "interface", iface, "error", err)
		}
	}
}

// factoryObject keeps the factory's Go API off the bus.
type factoryObject struct {
	f *Factory
}

func (o factoryObject) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	return o.f.CreateEngine(engineName)
}

func propertyIntrospection(props map[string]*prop.Prop) []introspect.Property {
	out := make([]introspect.Property, 0, len(props))
	for name, p := range props {
		out = append(out, p.Introspection(name))
	}
	return out
}

var engineSignals = []introspect.Signal{
	{Name: "CommitText", Args: []introspect.Arg{{Name: "text", Type: "v"}}},
	{Name: "DeleteSurroundingText", Args: []introspect.Arg{
		{Name: "offset", Type: "i"},
		{Name: "nchars", Type: "u"},
	}},
	{Name: "ForwardKeyEvent", Args: []introspect.Arg{
		{Name: "keyval", Type: "u"},
		{Name: "keycode", Type: "u"},
		{Name: "state", Type: "u"},
	}},
	{Name: "RequireSurroundingText"},
}
