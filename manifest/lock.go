package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// LockFile records the content hash of every unit a build produced, so a
// later build or the disassembler can tell whether a unit changed.
type LockFile struct {
	Units []LockedUnit `toml:"unit"`
}

// LockedUnit is one entry of garnet.lock.
type LockedUnit struct {
	Name string `toml:"name"`
	Hash string `toml:"hash"` // hex sha256 of the canonical encoding
	ID   string `toml:"id"`
}

// ReadLock reads a lock file. A missing file returns nil, nil.
func ReadLock(path string) (*LockFile, error) {
	var lf LockFile
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf with its units sorted by name.
func WriteLock(path string, lf *LockFile) error {
	sort.Slice(lf.Units, func(i, j int) bool { return lf.Units[i].Name < lf.Units[j].Name })
	var buf bytes.Buffer
	buf.WriteString("# Generated by garnet. Do not edit.\n\n")
	if err := toml.NewEncoder(&buf).Encode(lf); err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Find returns the entry for a unit, or nil.
func (lf *LockFile) Find(name string) *LockedUnit {
	if lf == nil {
		return nil
	}
	for i := range lf.Units {
		if lf.Units[i].Name == name {
			return &lf.Units[i]
		}
	}
	return nil
}

// Record adds or replaces the entry for a unit.
func (lf *LockFile) Record(name, hash, id string) {
	if u := lf.Find(name); u != nil {
		u.Hash, u.ID = hash, id
		return
	}
	lf.Units = append(lf.Units, LockedUnit{Name: name, Hash: hash, ID: id})
}
