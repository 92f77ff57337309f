package plan

import "intervene/internal/domain"

// applySlack runs the backward pass. An entry's latest finish is the week
// before its earliest-constrained successor's latest start, or the overall end
// week when it has no successor. Slack is latest start minus start; zero-slack
// entries lie on a longest path. The user CriticalPath flag is left alone.
// It returns one longest path from a week-1 entry to the last finisher.
func applySlack(entries []domain.TimelineEntry, order []int, succs [][]int, total int) []string {
	if len(order) == 0 {
		return nil
	}
	latestStart := make([]int, len(entries))
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		finish := total
		for _, s := range succs[i] {
			if latestStart[s]-1 < finish {
				finish = latestStart[s] - 1
			}
		}
		latestStart[i] = finish - entries[i].Duration + 1
		entries[i].Slack = latestStart[i] - entries[i].StartWeek
		entries[i].OnLongestPath = entries[i].Slack == 0
	}

	// Follow zero-slack successors that start right after the current end.
	cur := -1
	for _, i := range order {
		if entries[i].OnLongestPath && entries[i].StartWeek == 1 {
			cur = i
			break
		}
	}
	var path []string
	for cur >= 0 {
		path = append(path, entries[cur].InterventionID)
		next := -1
		for _, s := range succs[cur] {
			if entries[s].OnLongestPath && entries[s].StartWeek == entries[cur].EndWeek+1 {
				if next < 0 || s < next {
					next = s
				}
			}
		}
		cur = next
	}
	return path
}
