package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/auraforge/relay/internal/domain"
)

// buildStages is the persona sequence for full application builds. Each
// stage feeds its output to the next; stages are plain personas run through
// the one generic dispatcher, not subclasses.
var buildStages = []string{"planner", "builder", "composer"}

// StageResult pairs a pipeline stage with the provider result that served
// it.
type StageResult struct {
	Agent  string
	Result *domain.Result
}

// Pipeline runs multi-stage agent flows.
type Pipeline struct {
	dispatcher *Dispatcher
}

// NewPipeline creates a new pipeline (DI constructor).
func NewPipeline(dispatcher *Dispatcher) *Pipeline {
	return &Pipeline{
		dispatcher: dispatcher,
	}
}

// RunBuild executes planner → builder → composer on a build request. Each
// stage is billed and routed independently; a stage failure aborts the
// pipeline and surfaces the stage's error.
func (p *Pipeline) RunBuild(
	ctx context.Context,
	message string,
	reqCtx domain.RequestContext,
	user *domain.User,
) ([]StageResult, error) {
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	results := make([]StageResult, 0, len(buildStages))
	input := message

	for i, stage := range buildStages {
		// Each stage is its own request for accounting purposes.
		stageCtx := reqCtx
		stageCtx.RequestID = ""

		result, err := p.dispatcher.Handle(ctx, stage, input, stageCtx, user)
		if err != nil {
			return results, fmt.Errorf("stage %s failed: %w", stage, err)
		}

		results = append(results, StageResult{Agent: stage, Result: result})

		if i < len(buildStages)-1 {
			input = stageInput(message, result.Message)
		}
	}

	return results, nil
}

// stageInput hands the next stage both the original request and the
// previous stage's output.
func stageInput(original, previous string) string {
	var b strings.Builder
	b.WriteString("Original request:\n")
	b.WriteString(original)
	b.WriteString("\n\nPrevious stage output:\n")
	b.WriteString(previous)
	return b.String()
}
