// Package stats computes dashboard cost aggregates over cards and usage
// records. All functions are pure.
package stats

import (
	"math"

	"github.com/jasonk0/card-count/internal/models"
)

// CardStats summarizes cost and usage for a single card.
type CardStats struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	UsageCount              int     `json:"usageCount"`
	PersonalUsageCount      int     `json:"personalUsageCount"`
	OriginalPrice           float64 `json:"originalPrice"`
	SalesRevenue            float64 `json:"salesRevenue"`
	NetCost                 float64 `json:"netCost"`
	CostPerUse              float64 `json:"costPerUse"`
	ExpectedPricePerUse     float64 `json:"expectedPricePerUse"`
	RemainingUsesToExpected int     `json:"remainingUsesToExpected"`
	ExtraValueAmount        float64 `json:"extraValueAmount"`
}

// Dashboard aggregates the whole collection plus per-card breakdowns.
type Dashboard struct {
	TotalCards        int         `json:"totalCards"`
	ActiveCards       int         `json:"activeCards"`
	TotalUsage        int         `json:"totalUsage"`
	TotalCost         float64     `json:"totalCost"`
	AverageCostPerUse float64     `json:"averageCostPerUse"`
	CardStats         []CardStats `json:"cardStats"`
}

// ComputeCard derives the cost statistics for one card from its records.
// Sales revenue offsets the purchase price, and per-use cost only counts
// personal uses (used and not sold).
func ComputeCard(card models.MembershipCard, records []models.UsageRecord) CardStats {
	out := CardStats{
		ID:                  card.ID,
		Name:                card.Name,
		OriginalPrice:       card.Price,
		ExpectedPricePerUse: card.ExpectedPricePerUse,
	}
	for _, record := range records {
		if record.CardID != card.ID {
			continue
		}
		if record.IsUsed {
			out.UsageCount++
			if !record.IsSold {
				out.PersonalUsageCount++
			}
		}
		if record.IsSold && record.SoldPrice != nil {
			out.SalesRevenue += *record.SoldPrice
		}
	}

	out.NetCost = out.OriginalPrice - out.SalesRevenue
	if out.PersonalUsageCount > 0 {
		out.CostPerUse = out.NetCost / float64(out.PersonalUsageCount)
	}
	if out.ExpectedPricePerUse > 0 && out.CostPerUse > out.ExpectedPricePerUse {
		out.RemainingUsesToExpected = int(math.Ceil(out.NetCost/out.ExpectedPricePerUse - float64(out.PersonalUsageCount)))
	}
	if out.ExpectedPricePerUse > 0 && out.CostPerUse < out.ExpectedPricePerUse {
		out.ExtraValueAmount = out.ExpectedPricePerUse*float64(out.PersonalUsageCount) - out.NetCost
	}
	return out
}

// ComputeDashboard derives the full dashboard over all cards and records.
func ComputeDashboard(cards []models.MembershipCard, records []models.UsageRecord) Dashboard {
	out := Dashboard{
		TotalCards: len(cards),
		CardStats:  make([]CardStats, 0, len(cards)),
	}

	personalTotalUsage := 0
	for _, record := range records {
		if record.IsUsed {
			out.TotalUsage++
			if !record.IsSold {
				personalTotalUsage++
			}
		}
	}
	for _, card := range cards {
		if card.IsActive {
			out.ActiveCards++
		}
		cardStats := ComputeCard(card, records)
		out.TotalCost += cardStats.NetCost
		out.CardStats = append(out.CardStats, cardStats)
	}
	if personalTotalUsage > 0 {
		out.AverageCostPerUse = out.TotalCost / float64(personalTotalUsage)
	}
	return out
}
