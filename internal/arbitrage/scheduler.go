package arbitrage

import (
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// ScheduleConflictFree walks opportunities in priority order and accepts each
// one whose pools are all still unused. Accepted opportunities touch disjoint
// pool sets and can be submitted as independent bundles.
func ScheduleConflictFree(opps []*types.Opportunity) []*types.Opportunity {
	used := make(map[int]bool)
	accepted := make([]*types.Opportunity, 0, len(opps))

	for _, opp := range opps {
		if conflicts(opp.Path, used) {
			continue
		}
		for _, poolID := range opp.Path.PoolIDs {
			used[poolID] = true
		}
		accepted = append(accepted, opp)
	}

	return accepted
}

func conflicts(path *types.Path, used map[int]bool) bool {
	for _, poolID := range path.PoolIDs {
		if used[poolID] {
			return true
		}
	}
	return false
}
