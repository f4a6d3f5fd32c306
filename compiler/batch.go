package compiler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/garnet/bytecode"
)

// Job describes one independent top-level unit.
type Job struct {
	Name  string
	Scope *StaticScope
	Body  BranchCallback
}

// CompileBatch compiles independent units concurrently, at most
// Options.Parallelism at a time. Each job gets its own MethodCompiler and
// scope arena. The first failure cancels the jobs not yet started; units
// are returned in job order.
func (c *Compiler) CompileBatch(ctx context.Context, jobs []Job) ([]*bytecode.Unit, error) {
	units := make([]*bytecode.Unit, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := c.CompileRoot(job.Name, job.Scope, job.Body)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.log.Debugf("compiled %d units", len(units))
	return units, nil
}
