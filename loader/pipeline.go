package loader

import (
	"context"

	"go.uber.org/zap"
)

type stage struct {
	loader  Loader
	options Options
}

// Pipeline is compiled UseChain. Stages are kept in execution order, which is
// reverse of declaration order. Pipeline holds loader references resolved at
// compile time.
type Pipeline struct {
	stages []stage
}

// Order returns loader names in execution order.
func (p *Pipeline) Order() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.loader.Name())
	}
	return names
}

// Run executes stages strictly one after another. Stages which do not apply
// to the file pass the unit through unchanged. Any stage error aborts the run:
// nothing is returned and dependencies collected so far are dropped.
func (p *Pipeline) Run(ctx context.Context, in Unit, base *Context) (Output, error) {
	var (
		log       = base.Logger()
		deps      = NewDependencySet()
		unit      = in
		extracted *Asset
		target    = base.Target()
	)

	for _, s := range p.stages {
		name := s.loader.Name()
		if err := ctx.Err(); err != nil {
			return Output{}, &TransformError{ID: base.ID, Loader: name, Err: err}
		}
		if !s.loader.Applies().Runs(target) {
			log.Debug("Skipping loader", zap.String("loader", name), zap.String("id", base.ID))
			continue
		}

		res, err := s.loader.Process(ctx, unit, base.derive(name, s.options, deps))
		if err != nil {
			return Output{}, &TransformError{ID: base.ID, Loader: name, Err: err}
		}
		unit = res.Unit
		if res.Extracted != nil {
			extracted = res.Extracted
		}
	}

	if base.Dependencies != nil {
		base.Dependencies.Merge(deps)
	}
	return Output{Unit: unit, Extracted: extracted, Dependencies: deps.List()}, nil
}
