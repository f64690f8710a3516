package ibus

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Component is the IBus component description the daemon reads from its
// component directory.
type Component struct {
	XMLName     xml.Name          `xml:"component"`
	Name        string            `xml:"name"`
	Description string            `xml:"description"`
	Exec        string            `xml:"exec"`
	Version     string            `xml:"version"`
	Author      string            `xml:"author"`
	License     string            `xml:"license"`
	Textdomain  string            `xml:"textdomain"`
	Engines     []EngineComponent `xml:"engines>engine"`
}

// EngineComponent describes one engine inside a component.
type EngineComponent struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

// NewComponent describes the bugtest engine launched by execPath.
func NewComponent(componentName, engineName, execPath string) Component {
	return Component{
		Name:        componentName,
		Description: "Surrounding text bug reproduction engine",
		Exec:        execPath + " --ibus",
		Version:     Version,
		Author:      "ibus-bugtest",
		License:     "MIT",
		Textdomain:  "ibus-bugtest",
		Engines: []EngineComponent{{
			Name:        engineName,
			Language:    "en",
			License:     "MIT",
			Author:      "ibus-bugtest",
			Layout:      "us",
			LongName:    "Bugtest",
			Description: "Replaces the character before the cursor with its uppercase form",
			Rank:        0,
			Symbol:      "B",
		}},
	}
}

// ComponentDir returns the per-user IBus component directory.
func ComponentDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "ibus", "component"), nil
}

// Marshal renders the component XML.
func (c Component) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal component: %w", err)
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}

// Install writes the component file into dir and returns its path.
func (c Component) Install(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := c.Marshal()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, c.fileName())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Uninstall removes the component file from dir.
func (c Component) Uninstall(dir string) error {
	return os.Remove(filepath.Join(dir, c.fileName()))
}

func (c Component) fileName() string {
	if len(c.Engines) > 0 {
		return c.Engines[0].Name + ".xml"
	}
	return c.Name + ".xml"
}
