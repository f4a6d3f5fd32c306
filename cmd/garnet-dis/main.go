// garnet-dis disassembles compiled units: CBOR unit files given on the
// command line, or units held in a project's unit cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/garnet/manifest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	verbosity int
	dbPath    string
	list      bool
	hashes    []string
	store     bool
	verify    bool
	exec      bool
	files     []string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("garnet-dis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	var hash string
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	fs.StringVar(&opts.dbPath, "db", "", "Unit cache database (default: from garnet.toml)")
	fs.BoolVar(&opts.list, "list", false, "List the units in the cache")
	fs.StringVar(&hash, "hash", "", "Disassemble the cached unit with this hash or hash prefix")
	fs.BoolVar(&opts.store, "store", false, "Store the given unit files in the cache and record them in garnet.lock")
	fs.BoolVar(&opts.verify, "verify", false, "Verify units and report problems instead of disassembling")
	fs.BoolVar(&opts.exec, "exec", false, "Run each unit on the reference interpreter after disassembling it")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: garnet-dis [options] [unit files...]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  garnet-dis build/main.cbor      # Disassemble a unit file\n")
		fmt.Fprintf(stderr, "  garnet-dis -store build/*.cbor  # Cache units and update garnet.lock\n")
		fmt.Fprintf(stderr, "  garnet-dis -list                # List cached units\n")
		fmt.Fprintf(stderr, "  garnet-dis -hash 3fa9c2         # Disassemble a cached unit\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if hash != "" {
		opts.hashes = append(opts.hashes, hash)
	}
	opts.files = fs.Args()
	if len(opts.files) == 0 && len(opts.hashes) == 0 && !opts.list {
		fs.Usage()
		return 2
	}

	commonlog.Configure(opts.verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	d := &disassembler{opts: opts, manifest: m, out: stdout, log: commonlog.GetLogger("garnet.dis")}
	if err := d.run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
