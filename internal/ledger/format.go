package ledger

import (
	"time"

	"campus-loyalty/internal/models"
)

// TransactionView is the type-tagged projection of a ledger row. Every
// variant carries the shared base fields; the per-type fields are pointers
// so absent ones drop out of the JSON encoding.
type TransactionView struct {
	ID         int64                  `json:"id"`
	Utorid     string                 `json:"utorid"`
	Type       models.TransactionType `json:"type"`
	Suspicious bool                   `json:"suspicious"`
	Remark     string                 `json:"remark"`
	CreatedBy  string                 `json:"createdBy"`
	Promotions []int64                `json:"promotionIds"`
	CreatedAt  time.Time              `json:"createdAt"`

	// purchase
	Spent  *float64 `json:"spent,omitempty"`
	Earned *int     `json:"earned,omitempty"`

	// adjustment
	Amount *int `json:"amount,omitempty"`

	// redemption
	Redeemed    *int   `json:"redeemed,omitempty"`
	ProcessedBy string `json:"processedBy,omitempty"`

	// transfer
	Sent     *int `json:"sent,omitempty"`
	Received *int `json:"received,omitempty"`

	// event
	Awarded *int `json:"awarded,omitempty"`

	// adjustment: related transaction; transfer: counter-party user;
	// event: awarding event.
	RelatedID *int64 `json:"relatedId,omitempty"`
}

// FormatTransaction shapes a stored row plus its joined users into the
// response projection. processor is only consulted for redemptions and may
// be nil; promotionIDs must already be sorted.
//
// For suspicious purchases Earned still reports the accrual amount — what
// the balance will gain when the flag is cleared — not the zero that was
// actually credited.
func FormatTransaction(trx *models.Transaction, owner, creator, processor *models.User, promotionIDs []int64) *TransactionView {
	if promotionIDs == nil {
		promotionIDs = []int64{}
	}

	view := &TransactionView{
		ID:         trx.ID,
		Utorid:     owner.Utorid,
		Type:       trx.Type,
		Suspicious: trx.Suspicious,
		Remark:     trx.Remark,
		CreatedBy:  creator.Utorid,
		Promotions: promotionIDs,
		CreatedAt:  trx.CreatedAt,
	}

	amount := trx.Amount

	switch trx.Type {
	case models.TransactionPurchase:
		view.Spent = trx.Spent
		view.Earned = &amount

	case models.TransactionAdjustment:
		view.Amount = &amount
		view.RelatedID = trx.RelatedID

	case models.TransactionRedemption:
		redeemed := -amount
		view.Redeemed = &redeemed
		if processor != nil {
			view.ProcessedBy = processor.Utorid
		}

	case models.TransactionTransfer:
		view.RelatedID = trx.RelatedUserID
		if amount < 0 {
			sent := -amount
			view.Sent = &sent
		} else {
			view.Received = &amount
		}

	case models.TransactionEvent:
		view.RelatedID = trx.EventID
		view.Awarded = &amount
	}

	return view
}
