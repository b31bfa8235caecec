package router

import (
	"fmt"

	"wordloom/internal/types"
)

// buildBreakdown produces the ordered subtask list: the primary subtask
// first, then supporting subtasks, then an optional QA subtask when risk is
// at least medium or the intent is destructive.
//
// Supporting workers that transform the primary's output depend on the
// primary; the research worker gathers grounding independently and runs in
// parallel. Subtask ids are deterministic so identical requests produce
// identical breakdowns.
func buildBreakdown(req types.Request, primary types.WorkerID, supporting []types.WorkerID, a analysis) []types.Subtask {
	perTask := estimateDuration(a.Complexity, 0)

	breakdown := []types.Subtask{{
		ID:                "t1",
		Description:       primaryDescription(req),
		WorkerID:          primary,
		Priority:          1,
		EstimatedDuration: perTask,
	}}

	prev := "t1"
	for i, id := range supporting {
		sub := types.Subtask{
			ID:                fmt.Sprintf("t%d", i+2),
			WorkerID:          id,
			EstimatedDuration: 30e9, // 30s per supporting pass
		}
		if id == types.WorkerResearch {
			// Research feeds the workflow without consuming primary output.
			sub.Description = "Gather factual grounding for: " + truncate(req.Content, 120)
			sub.Priority = 2
		} else {
			sub.Description = fmt.Sprintf("Apply %s pass to the drafted content", id)
			sub.Priority = 3
			sub.DependsOn = []string{prev}
			prev = sub.ID
		}
		breakdown = append(breakdown, sub)
	}

	if a.Risk.AtLeast(types.RiskMedium) || a.Features.Destructive {
		all := make([]string, len(breakdown))
		for i, s := range breakdown {
			all[i] = s.ID
		}
		breakdown = append(breakdown, types.Subtask{
			ID:                fmt.Sprintf("t%d", len(breakdown)+1),
			Description:       "Final quality review before delivery",
			WorkerID:          types.WorkerQAReviewer,
			Priority:          3,
			DependsOn:         all,
			EstimatedDuration: 30e9,
		})
	}
	return breakdown
}

func primaryDescription(req types.Request) string {
	switch req.Kind {
	case types.TaskKindEdit:
		return "Edit the provided content per the request"
	case types.TaskKindReview:
		return "Review the provided content per the request"
	case types.TaskKindResearch:
		return "Research the requested topic"
	case types.TaskKindSummarize:
		return "Summarize the requested material"
	default:
		return "Produce the requested content"
	}
}
