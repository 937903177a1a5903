// Package pricing computes demand and time adjusted ticket prices.
package pricing

import (
	"math"
	"time"
)

const (
	// MaxMultiplier caps the dynamic price relative to the base price.
	MaxMultiplier = 2.0
)

// Input is everything the price curve depends on.
type Input struct {
	BasePrice   float64
	Capacity    int
	TicketsSold int
	EventDate   time.Time
	Now         time.Time
}

// Quote is a computed dynamic price with the factors that produced it.
type Quote struct {
	BasePrice        float64 `json:"basePrice"`
	DynamicPrice     float64 `json:"dynamicPrice"`
	PercentSold      float64 `json:"percentSold"`
	DaysUntilEvent   int     `json:"daysUntilEvent"`
	DemandMultiplier float64 `json:"demandMultiplier"`
	SurgeMultiplier  float64 `json:"surgeMultiplier"`
}

// DaysUntil returns whole days from now to the event, never negative.
func DaysUntil(eventDate, now time.Time) int {
	d := eventDate.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// DemandMultiplier picks the highest tier the sold ratio exceeds.
func DemandMultiplier(percentSold float64) float64 {
	switch {
	case percentSold > 0.75:
		return 1.50
	case percentSold > 0.50:
		return 1.30
	case percentSold > 0.25:
		return 1.15
	default:
		return 1.00
	}
}

func SurgeMultiplier(daysUntilEvent int) float64 {
	switch {
	case daysUntilEvent < 3:
		return 1.25
	case daysUntilEvent < 7:
		return 1.15
	default:
		return 1.00
	}
}

// Compute applies demand and surge multipliers, caps at 2x base and rounds to cents.
func Compute(in Input) Quote {
	capacity := in.Capacity
	if capacity < 1 {
		capacity = 1
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	percentSold := float64(in.TicketsSold) / float64(capacity)
	days := DaysUntil(in.EventDate, now)
	demand := DemandMultiplier(percentSold)
	surge := SurgeMultiplier(days)

	price := in.BasePrice * demand * surge
	price = math.Min(price, in.BasePrice*MaxMultiplier)

	return Quote{
		BasePrice:        in.BasePrice,
		DynamicPrice:     Round2(price),
		PercentSold:      Round2(percentSold * 100),
		DaysUntilEvent:   days,
		DemandMultiplier: demand,
		SurgeMultiplier:  surge,
	}
}

// DynamicPrice is Compute without the breakdown.
func DynamicPrice(in Input) float64 {
	return Compute(in).DynamicPrice
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToMinorUnits converts a major-unit amount to integer cents.
func ToMinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FromMinorUnits converts integer cents to a major-unit amount.
func FromMinorUnits(v int64) float64 {
	return float64(v) / 100
}
