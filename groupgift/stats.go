package groupgift

import "context"

type Stats struct {
	TotalGroupGifts     int     `json:"total_group_gifts"`
	ActiveGroupGifts    int     `json:"active_group_gifts"`
	CompletedGroupGifts int     `json:"completed_group_gifts"`
	TotalAmount         int64   `json:"total_amount"` // Amount in cents
	TotalContributors   int     `json:"total_contributors"`
	AverageContribution float64 `json:"average_contribution"` // Amount in cents
}

// CalculateStats folds a snapshot of campaigns into aggregate statistics.
func CalculateStats(gifts []GroupGift) Stats {
	var stats Stats
	var contributed int64

	for _, g := range gifts {
		stats.TotalGroupGifts++
		switch g.Status {
		case StatusActive:
			stats.ActiveGroupGifts++
		case StatusCompleted:
			stats.CompletedGroupGifts++
		}
		stats.TotalAmount += g.CurrentAmount

		for _, c := range g.Contributors {
			stats.TotalContributors++
			contributed += c.Amount
		}
	}

	if stats.TotalContributors > 0 {
		stats.AverageContribution = float64(contributed) / float64(stats.TotalContributors)
	}

	return stats
}

type Aggregator struct {
	repo Repository
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	gifts, err := a.repo.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return CalculateStats(gifts), nil
}
