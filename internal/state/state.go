// Package state keeps guest variables alive between pdksim invocations.
//
// A state file is a CBOR-encoded Snapshot. run and repl load it before the
// session starts and write it back when the session ends, so a plugin that
// counts calls through var_set keeps counting across separate commands.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("state: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Snapshot is the persisted part of a session.
type Snapshot struct {
	Plugin  string            `cbor:"1,keyasint,omitempty"`
	Vars    map[string]uint64 `cbor:"2,keyasint,omitempty"`
	SavedAt time.Time         `cbor:"3,keyasint,omitempty"`
}

// Marshal encodes s in canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal decodes a snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("state: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// Load reads the snapshot at path. A missing file yields an empty snapshot.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	return Unmarshal(data)
}

// Save writes s to path through a temporary file in the same directory.
func Save(path string, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("state: marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdksim-state-*")
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
