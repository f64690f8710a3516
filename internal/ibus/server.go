package ibus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"ibus-bugtest/internal/logging"
)

// ServerConfig holds IBus server configuration.
type ServerConfig struct {
	// Address is the bus address. Empty means discover it, falling back to
	// the session bus.
	Address string

	// ComponentName is the well-known name requested when OwnName is set.
	ComponentName string

	// EngineName is the engine name the factory accepts.
	EngineName string

	// OwnName requests ComponentName on the bus. ibus-daemon expects this
	// when it launches the engine with --ibus.
	OwnName bool

	TriggerKey uint32
	Logger     *slog.Logger
	Crash      *logging.CrashHandler
}

// Server connects the factory to the IBus bus.
type Server struct {
	cfg     ServerConfig
	log     *slog.Logger
	conn    *dbus.Conn
	factory *Factory
}

// NewServer creates a server. Run connects it.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ComponentName == "" {
		cfg.ComponentName = DefaultComponentName
	}
	if cfg.EngineName == "" {
		cfg.EngineName = DefaultEngineName
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{cfg: cfg, log: log}
}

// Run connects to the bus, exports the factory and blocks until ctx is
// cancelled or the bus connection drops.
func (s *Server) Run(ctx context.Context) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	s.conn = conn
	defer conn.Close()

	s.factory = NewFactory(BusConn{conn}, s.cfg.EngineName, SessionOptions{
		TriggerKey: s.cfg.TriggerKey,
		Logger:     s.log,
		Crash:      s.cfg.Crash,
	})
	defer s.factory.Close()

	if err := s.factory.Export(); err != nil {
		return err
	}

	if s.cfg.OwnName {
		reply, err := conn.RequestName(s.cfg.ComponentName, dbus.NameFlagDoNotQueue)
		if err != nil {
			return fmt.Errorf("failed to request bus name: %w", err)
		}
		if reply != dbus.RequestNameReplyPrimaryOwner {
			return errors.New("bus name already taken")
		}
	}

	s.log.Info("bugtest IBus engine started",
		"component", s.cfg.ComponentName, "engine", s.cfg.EngineName)

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		return nil
	case <-conn.Context().Done():
		return errors.New("ibus: bus connection closed")
	}
}

func (s *Server) connect() (*dbus.Conn, error) {
	addr := s.cfg.Address
	if addr == "" {
		found, err := Address()
		if err != nil {
			s.log.Warn("ibus address not found, using session bus", "error", err)
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, fmt.Errorf("failed to connect to session bus: %w", err)
			}
			return conn, nil
		}
		addr = found
	}

	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ibus at %s: %w", addr, err)
	}
	s.log.Debug("connected to ibus", "address", addr)
	return conn, nil
}
