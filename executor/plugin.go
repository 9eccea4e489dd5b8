package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Plugin is a compiled guest binary.
type Plugin struct {
	Name string
	Wasm []byte
}

// LoadPlugin reads a .wasm file. The plugin is named after the file.
func LoadPlugin(path string) (Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plugin{}, fmt.Errorf("read plugin: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Plugin{Name: name, Wasm: data}, nil
}

// ImportStatus describes one function the guest imports and whether the host
// provides it.
type ImportStatus struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	Supported bool   `json:"supported"`
}

// PluginInfo is what Inspect reports about a guest.
type PluginInfo struct {
	Name    string         `json:"name"`
	Exports []string       `json:"exports"`
	Imports []ImportStatus `json:"imports"`
}

// Missing returns the imports the host does not provide.
func (p PluginInfo) Missing() []ImportStatus {
	var out []ImportStatus
	for _, imp := range p.Imports {
		if !imp.Supported {
			out = append(out, imp)
		}
	}
	return out
}
