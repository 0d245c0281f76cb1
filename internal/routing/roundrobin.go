package routing

import "callrouter/internal/directory"

// NextAgent selects the agent to ring next in a department.
//
// Among available agents not in tried, it picks the smallest RoundRobinOrder
// strictly greater than cursor, wrapping to the smallest order overall when
// none is greater. Agents sharing an order value are broken by the
// lexicographically smaller ID.
func NextAgent(agents []directory.Agent, cursor int, tried QueueState) (directory.Agent, bool) {
	var after, lowest *directory.Agent
	for i := range agents {
		a := &agents[i]
		if !a.IsAvailable || tried.HasTried(a.ID) {
			continue
		}
		if lowest == nil || before(a, lowest) {
			lowest = a
		}
		if a.RoundRobinOrder > cursor && (after == nil || before(a, after)) {
			after = a
		}
	}
	switch {
	case after != nil:
		return *after, true
	case lowest != nil:
		return *lowest, true
	default:
		return directory.Agent{}, false
	}
}

func before(a, b *directory.Agent) bool {
	if a.RoundRobinOrder != b.RoundRobinOrder {
		return a.RoundRobinOrder < b.RoundRobinOrder
	}
	return a.ID < b.ID
}
