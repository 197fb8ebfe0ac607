package trading

import (
	"sort"

	"stonks-go/src/models"
)

// RankAndAllocate orders sized ideas by potential gain percent descending
// (ties broken by ticker so the output is stable) and greedily accepts
// ideas while their capital requirement fits the remaining buying power.
// An idea too large for the remaining budget is skipped, not terminal:
// smaller ideas after it are still considered. Returns the accepted ideas
// in placement order and the total capital committed.
func RankAndAllocate(ideas []models.SizedIdea, buyingPower float64) ([]models.SizedIdea, float64) {
	ranked := make([]models.SizedIdea, len(ideas))
	copy(ranked, ideas)

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].PotentialGainPct != ranked[j].PotentialGainPct {
			return ranked[i].PotentialGainPct > ranked[j].PotentialGainPct
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	selected := make([]models.SizedIdea, 0, len(ranked))
	remaining := buyingPower
	committed := 0.0

	for _, idea := range ranked {
		if idea.CapitalRequired > remaining {
			continue
		}
		selected = append(selected, idea)
		remaining -= idea.CapitalRequired
		committed += idea.CapitalRequired
	}

	return selected, committed
}
