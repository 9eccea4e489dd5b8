package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
plugin = "plugin.wasm"
function = "greet"
input = "world"
timeout = "5s"
state = "vars.cbor"

[config]
greeting = "hello"

[vars]
count = 3

[arena]
capacity = 131072

[http]
allowed_hosts = ["example.com"]
timeout = "2s"
max_body_size = 4096

[log]
level = "debug"
format = "json"
`

const sampleYAML = `
plugin: plugin.wasm
function: greet
input: world
timeout: 5s
state: vars.cbor
config:
  greeting: hello
vars:
  count: 3
arena:
  capacity: 131072
http:
  allowed_hosts: [example.com]
  timeout: 2s
  max_body_size: 4096
log:
  level: debug
  format: json
`

func TestParseFormatsAgree(t *testing.T) {
	fromTOML, err := Parse([]byte(sampleTOML), ".toml")
	require.NoError(t, err)
	fromYAML, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, fromTOML, fromYAML)

	s := fromTOML
	assert.Equal(t, "plugin.wasm", s.Plugin)
	assert.Equal(t, "greet", s.Function)
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, map[string]string{"greeting": "hello"}, s.Config)
	assert.Equal(t, map[string]uint64{"count": 3}, s.Vars)
	assert.Equal(t, 131072, s.Arena.Capacity)
	assert.Equal(t, "vars.cbor", s.State)

	http := s.HTTPConfig()
	assert.Equal(t, []string{"example.com"}, http.AllowedHosts)
	assert.Equal(t, 2*time.Second, http.RequestTimeout)
	assert.Equal(t, int64(4096), http.MaxBodySize)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		ext  string
	}{
		{"unknown toml key", `plugni = "x.wasm"`, ".toml"},
		{"unknown yaml key", "plugni: x.wasm\n", ".yml"},
		{"bad log level", "[log]\nlevel = \"loud\"\n", ".toml"},
		{"negative capacity", "arena:\n  capacity: -1\n", ".yaml"},
		{"input and input_file", "input = \"a\"\ninput_file = \"b\"\n", ".toml"},
		{"bad host", "[http]\nallowed_hosts = [\"not a host\"]\n", ".toml"},
		{"unsupported format", `{}`, ".json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext)
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyYAML(t *testing.T) {
	s, err := Parse(nil, ".yaml")
	require.NoError(t, err)
	assert.Empty(t, s.Plugin)
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.toml")
	require.NoError(t, os.WriteFile(path, []byte("plugin = \"guest.wasm\"\ninput_file = \"in.json\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.json"), []byte(`{"a":1}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "guest.wasm"), s.Resolve(s.Plugin))
	assert.Equal(t, "/abs/p.wasm", s.Resolve("/abs/p.wasm"))

	input, err := s.InputBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(input))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "cannot read")
}
