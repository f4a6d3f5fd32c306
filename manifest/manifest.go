// Package manifest handles garnet.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/garnet/compiler"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "garnet.toml"

// Manifest represents a garnet.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Compiler CompilerConfig `toml:"compiler"`
	Output   Output         `toml:"output"`
	Cache    Cache          `toml:"cache"`

	// Dir is the directory containing the garnet.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// CompilerConfig overrides compiler.DefaultOptions. Pointer fields
// distinguish "unset" from a zero value.
type CompilerConfig struct {
	MaxScopeDepth int   `toml:"max-scope-depth"`
	LineNumbers   *bool `toml:"line-numbers"`
	PollLoops     bool  `toml:"poll-loops"`
	Parallelism   int   `toml:"parallelism"`
}

// Output configures where finalized units are written.
type Output struct {
	Dir string `toml:"dir"`
}

// Cache configures the unit cache.
type Cache struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Load parses a garnet.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Output.Dir == "" {
		m.Output.Dir = "build"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".garnet", "units.db")
	}

	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Compiler.MaxScopeDepth < 0 {
		return errors.New("compiler.max-scope-depth must not be negative")
	}
	if m.Compiler.Parallelism < 0 {
		return errors.New("compiler.parallelism must not be negative")
	}
	return nil
}

// FindAndLoad walks up from startDir to find a garnet.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// CompilerOptions returns the default compiler options with the
// [compiler] section applied.
func (m *Manifest) CompilerOptions() compiler.Options {
	opts := compiler.DefaultOptions()
	if m == nil {
		return opts
	}
	c := m.Compiler
	if c.MaxScopeDepth > 0 {
		opts.MaxScopeDepth = c.MaxScopeDepth
	}
	if c.LineNumbers != nil {
		opts.LineNumbers = *c.LineNumbers
	}
	opts.PollLoops = c.PollLoops
	if c.Parallelism > 0 {
		opts.Parallelism = c.Parallelism
	}
	return opts
}

// OutputDir returns the absolute unit output directory.
func (m *Manifest) OutputDir() string {
	return m.abs(m.Output.Dir)
}

// CachePath returns the absolute path of the unit cache, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m.Cache.Disabled {
		return ""
	}
	return m.abs(m.Cache.Path)
}

// LockFilePath returns the path to garnet.lock.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, "garnet.lock")
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
