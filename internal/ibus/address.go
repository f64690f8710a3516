package ibus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoAddress is returned when no IBus address could be found.
var ErrNoAddress = errors.New("ibus: no bus address found")

var machineIDFiles = []string{"/var/lib/dbus/machine-id", "/etc/machine-id"}

// Address finds the D-Bus address of the running ibus-daemon. It checks
// IBUS_ADDRESS first, then the file named by IBUS_ADDRESS_FILE, then the
// address file the daemon writes under $XDG_CONFIG_HOME/ibus/bus.
func Address() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}

	path := os.Getenv("IBUS_ADDRESS_FILE")
	if path == "" {
		var err error
		if path, err = socketFile(); err != nil {
			return "", err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open ibus address file: %w", err)
	}
	defer f.Close()

	return parseAddressFile(f)
}

// socketFile returns the path of the address file for the current display.
func socketFile() (string, error) {
	machineID, err := readMachineID()
	if err != nil {
		return "", err
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home dir: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}

	name := socketName(machineID, os.Getenv("DISPLAY"), os.Getenv("WAYLAND_DISPLAY"))
	return filepath.Join(configDir, "ibus", "bus", name), nil
}

// socketName builds "<machine-id>-<host>-<display number>" the way
// ibus-daemon names its address file.
func socketName(machineID, display, waylandDisplay string) string {
	host, number := "unix", "0"

	switch {
	case waylandDisplay != "":
		number = waylandDisplay
	case display != "":
		h, rest, ok := strings.Cut(display, ":")
		if ok {
			if h != "" {
				host = h
			}
			if n, _, _ := strings.Cut(rest, "."); n != "" {
				number = n
			}
		}
	}

	return fmt.Sprintf("%s-%s-%s", machineID, host, number)
}

// parseAddressFile reads the IBUS_ADDRESS= line of an address file.
func parseAddressFile(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if addr, ok := strings.CutPrefix(line, "IBUS_ADDRESS="); ok && addr != "" {
			return addr, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read ibus address file: %w", err)
	}
	return "", ErrNoAddress
}

func readMachineID() (string, error) {
	for _, p := range machineIDFiles {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	return "", errors.New("ibus: machine id not found")
}
