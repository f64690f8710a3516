//go:build linux

// ibus-engine-bugtest is an IBus engine for reproducing surrounding-text
// bugs in IBus clients.
//
// It caches the text left of the cursor and, when the trigger key ("x" by
// default) is pressed, deletes the character before the cursor and commits
// the uppercase form of the last cached character. Any other printable key
// is committed unchanged. Every host call is logged at debug level.
//
// Installation:
//  1. Copy binary to /usr/local/bin/ibus-engine-bugtest
//  2. Run: ibus-engine-bugtest --install
//  3. Restart IBus: ibus restart
//  4. Enable via: ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"ibus-bugtest/internal/config"
	"ibus-bugtest/internal/ibus"
	"ibus-bugtest/internal/logging"
)

func main() {
	ibusFlag := flag.Bool("ibus", false, "Launched by ibus-daemon; own the component bus name")
	installFlag := flag.Bool("install", false, "Install IBus component and a default config")
	uninstallFlag := flag.Bool("uninstall", false, "Uninstall IBus component")
	configFlag := flag.String("config", "", "Path to config file (default: "+config.ConfigPath()+")")
	debugFlag := flag.Bool("debug", false, "Force debug logging")
	flag.Parse()

	if *installFlag || *uninstallFlag {
		if err := manageComponent(*configFlag, *installFlag); err != nil {
			fatalf("%v", err)
		}
		return
	}

	path := *configFlag
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		fatalf("Failed to load config %s: %v", path, err)
	}

	if err := run(loader, *ibusFlag, *debugFlag); err != nil {
		fatalf("%v", err)
	}
}

func run(loader *config.Loader, launchedByIBus, debug bool) (err error) {
	cfg := loader.Config()
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if debug {
		lc.Level = logging.LevelDebug
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		Version:   ibus.Version,
		Component: lc.Component,
		Logger:    logger.Logger,
	})
	defer crash.RecoverError(&err, map[string]any{"phase": "run"})

	trigger, err := cfg.TriggerKeyval()
	if err != nil {
		return err
	}

	stopWatch := watchConfig(loader, logger.WithComponent("config"), debug)
	defer stopWatch()

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	server := ibus.NewServer(ibus.ServerConfig{
		Address:       cfg.Engine.BusAddress,
		ComponentName: cfg.Engine.ComponentName,
		EngineName:    cfg.Engine.EngineName,
		OwnName:       launchedByIBus,
		TriggerKey:    trigger,
		Logger:        logger.WithComponent("ibus").Logger,
		Crash:         crash,
	})
	return server.Run(ctx)
}

// watchConfig follows edits to the config file. Only the log level is
// applied live; engine settings take effect for engines created after a
// restart. The returned func closes the loader and waits for the last
// reload error to be logged.
func watchConfig(loader *config.Loader, logger *logging.Logger, debug bool) func() {
	if err := loader.Watch(); err != nil {
		logger.Debug("config watch disabled", "path", loader.Path(), "error", err)
		return func() { loader.Close() }
	}

	loader.OnChange(func(c *config.Config) {
		if debug {
			return
		}
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil || level == logger.GetLevel() {
			return
		}
		logger.SetLevel(level)
		logger.Info("config reloaded", "level", logging.LevelString(level))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range loader.Errors() {
			logger.Warn("config reload failed", "error", err)
		}
	}()

	return func() {
		loader.Close()
		<-done
	}
}

func manageComponent(configPath string, install bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := ibus.ComponentDir()
	if err != nil {
		return fmt.Errorf("component dir: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "/usr/local/bin/ibus-engine-bugtest"
	}
	component := ibus.NewComponent(cfg.Engine.ComponentName, cfg.Engine.EngineName, exe)

	if !install {
		if err := component.Uninstall(dir); err != nil {
			return fmt.Errorf("failed to uninstall: %w", err)
		}
		fmt.Println("Uninstalled successfully.")
		return nil
	}

	path, err := component.Install(dir)
	if err != nil {
		return fmt.Errorf("failed to install: %w", err)
	}
	fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", path)

	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig(), configPath); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		fmt.Printf("Wrote default config %s.\n", configPath)
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ibus-engine-bugtest: "+format+"\n", args...)
	os.Exit(1)
}
