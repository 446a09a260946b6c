package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PromotionType string

const (
	// PromotionAutomatic applies to every qualifying purchase.
	PromotionAutomatic PromotionType = "automatic"
	// PromotionOneTime may be consumed at most once per user.
	PromotionOneTime PromotionType = "one-time"
)

type Promotion struct {
	bun.BaseModel `bun:"table:promotions"`

	ID          int64         `bun:"id,pk,autoincrement" json:"id"`
	Name        string        `bun:"name,notnull" json:"name"`
	Description string        `bun:"description,nullzero" json:"description"`
	Type        PromotionType `bun:"type,notnull" json:"type"`
	StartTime   time.Time     `bun:"start_time,notnull" json:"startTime"`
	EndTime     time.Time     `bun:"end_time,notnull" json:"endTime"`
	MinSpending *float64      `bun:"min_spending" json:"minSpending,omitempty"`
	Rate        *float64      `bun:"rate" json:"rate,omitempty"`
	Points      *int          `bun:"points" json:"points,omitempty"`
}
