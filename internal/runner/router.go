package runner

import (
	"basegraph.app/relay/internal/model"
	"basegraph.app/relay/internal/scheduler"
)

// Router dispatches a job to its runner by (job_type, prd_mode,
// spec_output.specMode), mirroring the scheduler's routing table:
//
//	code            -> OneShotRunner
//	ralph, specMode -> LoopRunner (task mode, whatever prd_mode says)
//	ralph, prd=true -> PRDRunner
//	ralph, else     -> LoopRunner (promise mode)
//	prd_generation  -> PRDGenerationRunner
//	spec            -> SpecPipelineRunner
type Router struct {
	oneShot      *OneShotRunner
	loop         *LoopRunner
	prd          *PRDRunner
	prdGen       *PRDGenerationRunner
	specPipeline *SpecPipelineRunner
}

func NewRouter(deps Deps) *Router {
	return &Router{
		oneShot:      NewOneShotRunner(deps),
		loop:         NewLoopRunner(deps),
		prd:          NewPRDRunner(deps),
		prdGen:       NewPRDGenerationRunner(deps),
		specPipeline: NewSpecPipelineRunner(deps),
	}
}

func (rt *Router) Route(job model.Job) scheduler.Runner {
	switch job.JobType {
	case model.JobTypeSpec:
		return rt.specPipeline
	case model.JobTypePrdGeneration:
		return rt.prdGen
	case model.JobTypeRalph:
		if job.SpecMode() {
			return rt.loop
		}
		if job.PrdMode {
			return rt.prd
		}
		return rt.loop
	default:
		return rt.oneShot
	}
}
