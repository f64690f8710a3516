// Package ibus exposes the bugtest engine to the IBus daemon over D-Bus.
//
// The daemon talks to engines through three interfaces:
//
//	org.freedesktop.IBus.Factory  CreateEngine(name) -> object path
//	org.freedesktop.IBus.Engine   key events, focus, surrounding text
//	org.freedesktop.IBus.Service  Destroy
//
// Engines talk back by emitting signals on their object path (CommitText,
// DeleteSurroundingText, ForwardKeyEvent, RequireSurroundingText). Session
// turns those signals into the engine.Host contract.
package ibus

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// IBus D-Bus constants
const (
	IBusService          = "org.freedesktop.IBus"
	IBusPath             = "/org/freedesktop/IBus"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusServiceInterface = "org.freedesktop.IBus.Service"
	IntrospectInterface  = "org.freedesktop.DBus.Introspectable"
	PropertiesInterface  = "org.freedesktop.DBus.Properties"

	FactoryPath    dbus.ObjectPath = "/org/freedesktop/IBus/Factory"
	EnginePathBase                 = "/org/freedesktop/IBus/Engine"

	ErrorNoEngine = "org.freedesktop.IBus.Error.NoEngine"
)

// Defaults for the bugtest component.
const (
	DefaultComponentName = "org.freedesktop.IBus.Bugtest"
	DefaultEngineName    = "bugtest"
	Version              = "1.0.0"
)

// Engine signals
const (
	signalCommitText             = IBusEngineInterface + ".CommitText"
	signalDeleteSurroundingText  = IBusEngineInterface + ".DeleteSurroundingText"
	signalForwardKeyEvent        = IBusEngineInterface + ".ForwardKeyEvent"
	signalRequireSurroundingText = IBusEngineInterface + ".RequireSurroundingText"
)

// Emitter sends signals on the bus. *dbus.Conn satisfies it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Conn is the subset of the bus connection the factory needs. BusConn
// adapts a *dbus.Conn.
type Conn interface {
	Emitter
	Export(v interface{}, path dbus.ObjectPath, iface string) error

	// ExportProperties serves org.freedesktop.DBus.Properties on path.
	ExportProperties(path dbus.ObjectPath, props prop.Map) error
}

// BusConn is a live *dbus.Conn with property export through the prop
// package.
type BusConn struct {
	*dbus.Conn
}

// ExportProperties implements Conn.
func (c BusConn) ExportProperties(path dbus.ObjectPath, props prop.Map) error {
	_, err := prop.Export(c.Conn, path, props)
	return err
}
