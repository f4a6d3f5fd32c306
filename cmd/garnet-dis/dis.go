package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/bytecode"
	"github.com/chazu/garnet/manifest"
	"github.com/chazu/garnet/store"
	"github.com/chazu/garnet/vm"
)

type disassembler struct {
	opts     options
	manifest *manifest.Manifest // nil outside a project
	out      io.Writer
	log      commonlog.Logger
	cache    *store.Store
	lock     *manifest.LockFile
	failed   int // units that did not verify
}

func (d *disassembler) run(ctx context.Context) error {
	if d.needsCache() {
		path, err := d.cachePath()
		if err != nil {
			return err
		}
		d.cache, err = store.Open(path)
		if err != nil {
			return err
		}
		defer d.cache.Close()
	}
	if d.manifest != nil {
		lock, err := manifest.ReadLock(d.manifest.LockFilePath())
		if err != nil {
			return err
		}
		d.lock = lock
	}

	if d.opts.list {
		if err := d.list(ctx); err != nil {
			return err
		}
	}
	for _, path := range d.opts.files {
		u, err := readUnit(path)
		if err != nil {
			return err
		}
		if err := d.show(ctx, path, u); err != nil {
			return err
		}
	}
	for _, h := range d.opts.hashes {
		u, err := d.cache.Get(ctx, h)
		if err != nil {
			return err
		}
		if err := d.show(ctx, h, u); err != nil {
			return err
		}
	}
	if d.opts.store && d.manifest != nil && d.lock != nil {
		if err := manifest.WriteLock(d.manifest.LockFilePath(), d.lock); err != nil {
			return err
		}
	}
	if d.failed > 0 {
		return fmt.Errorf("%d unit(s) failed verification", d.failed)
	}
	return nil
}

func (d *disassembler) needsCache() bool {
	return d.opts.list || d.opts.store || len(d.opts.hashes) > 0
}

func (d *disassembler) cachePath() (string, error) {
	if d.opts.dbPath != "" {
		return d.opts.dbPath, nil
	}
	if d.manifest == nil {
		return "", errors.New("no garnet.toml found; pass -db")
	}
	path := d.manifest.CachePath()
	if path == "" {
		return "", errors.New("the unit cache is disabled in garnet.toml")
	}
	return path, nil
}

func readUnit(path string) (*bytecode.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := bytecode.UnmarshalUnit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

func (d *disassembler) list(ctx context.Context) error {
	entries, err := d.cache.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(d.out, "%s  %-24s %6d bytes  %s\n", short(e.Hash), e.Name, e.Size, e.ID)
	}
	return nil
}

// show prints one unit: its disassembly, a verification report, or a run
// result, depending on the options.
func (d *disassembler) show(ctx context.Context, source string, u *bytecode.Unit) error {
	sum, err := bytecode.ContentHash(u)
	if err != nil {
		return err
	}
	hash := hex.EncodeToString(sum[:])
	d.checkLock(u.Name, hash)

	if d.opts.store {
		if _, err := d.cache.Put(ctx, u); err != nil {
			return err
		}
		if d.lock == nil && d.manifest != nil {
			d.lock = &manifest.LockFile{}
		}
		if d.lock != nil {
			id, err := bytecode.UnitID(u)
			if err != nil {
				return err
			}
			d.lock.Record(u.Name, hash, id.String())
		}
		fmt.Fprintf(d.out, "stored %s as %s\n", u.Name, short(hash))
		return nil
	}

	if d.opts.verify {
		if err := bytecode.Verify(u); err != nil {
			fmt.Fprintf(d.out, "%s: FAIL %v\n", source, err)
			d.failed++
			return nil
		}
		fmt.Fprintf(d.out, "%s: ok\n", source)
		return nil
	}

	fmt.Fprintf(d.out, "; %s (%s)\n", source, short(hash))
	fmt.Fprint(d.out, bytecode.Disassemble(u))

	if d.opts.exec {
		if err := bytecode.Verify(u); err != nil {
			fmt.Fprintf(d.out, "; not run: %v\n", err)
			d.failed++
			return nil
		}
		in := vm.NewInterpreter()
		in.Out = d.out
		v, err := in.Run(ctx, u)
		if err != nil {
			fmt.Fprintf(d.out, "; raised %v\n", err)
			return nil
		}
		fmt.Fprintf(d.out, "; => %s\n", vm.Inspect(v))
	}
	return nil
}

// checkLock warns when a unit differs from the hash recorded for it.
func (d *disassembler) checkLock(name, hash string) {
	locked := d.lock.Find(name)
	if locked == nil || locked.Hash == hash {
		return
	}
	d.log.Warningf("%s changed since it was locked (%s, now %s)", name, short(locked.Hash), short(hash))
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
