package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionTransfer   TransactionType = "transfer"
	TransactionRedemption TransactionType = "redemption"
	TransactionEvent      TransactionType = "event"
)

// Transaction is an immutable audit record: after creation only the
// suspicious flag and processed_by are ever updated.
//
// Amount is a signed point delta: positive credits the owning user,
// negative debits them. The optional columns carry the type-specific
// payload: spent+suspicious for purchases, related_id for adjustments
// (original transaction) and transfers (paired leg), related_user_id for
// the transfer counter-party, event_id for event awards, processed_by for
// fulfilled redemptions.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID            int64           `bun:"id,pk,autoincrement" json:"id"`
	Type          TransactionType `bun:"type,notnull" json:"type"`
	UserID        int64           `bun:"user_id,notnull" json:"user_id"`
	CreatedBy     int64           `bun:"created_by,notnull" json:"created_by"`
	Amount        int             `bun:"amount,notnull" json:"amount"`
	Spent         *float64        `bun:"spent" json:"spent,omitempty"`
	Suspicious    bool            `bun:"suspicious,notnull,default:false" json:"suspicious"`
	Remark        string          `bun:"remark,nullzero" json:"remark"`
	RelatedID     *int64          `bun:"related_id" json:"related_id,omitempty"`
	RelatedUserID *int64          `bun:"related_user_id" json:"related_user_id,omitempty"`
	EventID       *int64          `bun:"event_id" json:"event_id,omitempty"`
	ProcessedBy   *int64          `bun:"processed_by" json:"processed_by,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// TransactionPromotion links a transaction to every promotion applied to it.
type TransactionPromotion struct {
	bun.BaseModel `bun:"table:transaction_promotions"`

	TransactionID int64 `bun:"transaction_id,pk" json:"transaction_id"`
	PromotionID   int64 `bun:"promotion_id,pk" json:"promotion_id"`
}

// PromotionUse records consumption of a one-time promotion by a user. The
// composite primary key is the uniqueness constraint that serializes
// concurrent check-then-act attempts: only one use per (promotion, user)
// can ever commit.
type PromotionUse struct {
	bun.BaseModel `bun:"table:promotion_uses"`

	PromotionID   int64 `bun:"promotion_id,pk" json:"promotion_id"`
	UserID        int64 `bun:"user_id,pk" json:"user_id"`
	TransactionID int64 `bun:"transaction_id,notnull" json:"transaction_id"`
}
