// Package config handles pdksim session files (TOML or YAML).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var ErrUnsupportedFormat = errors.New("unsupported session file format")

// Session describes one simulated run: which plugin, what it is called with,
// and how the host is set up.
type Session struct {
	Plugin    string            `toml:"plugin" yaml:"plugin"`
	Function  string            `toml:"function" yaml:"function"`
	Input     string            `toml:"input" yaml:"input" validate:"excluded_with=InputFile"`
	InputFile string            `toml:"input_file" yaml:"input_file"`
	Config    map[string]string `toml:"config" yaml:"config"`
	Vars      map[string]uint64 `toml:"vars" yaml:"vars"`
	Timeout   time.Duration     `toml:"timeout" yaml:"timeout" validate:"gte=0"`
	Arena     Arena             `toml:"arena" yaml:"arena"`
	HTTP      HTTP              `toml:"http" yaml:"http"`
	Log       Log               `toml:"log" yaml:"log"`
	State     string            `toml:"state" yaml:"state"`

	// Dir is the directory containing the session file (set at load time).
	Dir string `toml:"-" yaml:"-"`
}

type Arena struct {
	Capacity int `toml:"capacity" yaml:"capacity" validate:"gte=0"`
}

type HTTP struct {
	AllowedHosts []string      `toml:"allowed_hosts" yaml:"allowed_hosts" validate:"dive,hostname_rfc1123"`
	Timeout      time.Duration `toml:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxBodySize  int64         `toml:"max_body_size" yaml:"max_body_size" validate:"gte=0"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" yaml:"format" validate:"omitempty,oneof=console json"`
}

// Load parses a session file. The format follows the extension: .toml, .yaml
// or .yml.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	s.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates session file content. ext selects the format.
func Parse(data []byte, ext string) (*Session, error) {
	var s Session
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys: %v", undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return &s, nil
}

// Resolve returns p relative to the session file directory unless it is
// already absolute.
func (s *Session) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.Dir == "" {
		return p
	}
	return filepath.Join(s.Dir, p)
}

// InputBytes returns the call input, reading InputFile when set.
func (s *Session) InputBytes() ([]byte, error) {
	if s.InputFile == "" {
		return []byte(s.Input), nil
	}
	data, err := os.ReadFile(s.Resolve(s.InputFile))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func (s *Session) HTTPConfig() hostfunc.HTTPConfig {
	return hostfunc.HTTPConfig{
		AllowedHosts:   s.HTTP.AllowedHosts,
		MaxBodySize:    s.HTTP.MaxBodySize,
		RequestTimeout: s.HTTP.Timeout,
	}
}
