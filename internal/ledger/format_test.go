package ledger_test

import (
	"testing"
	"time"

	"campus-loyalty/internal/ledger"
	"campus-loyalty/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPurchase(t *testing.T) {
	owner := &models.User{ID: 1, Utorid: "customer1"}
	creator := &models.User{ID: 2, Utorid: "cashier1"}
	spent := 19.99
	trx := &models.Transaction{
		ID:        10,
		Type:      models.TransactionPurchase,
		UserID:    owner.ID,
		CreatedBy: creator.ID,
		Amount:    80,
		Spent:     &spent,
		Remark:    "bookstore",
		CreatedAt: time.Now(),
	}

	view := ledger.FormatTransaction(trx, owner, creator, nil, []int64{3, 7})

	assert.Equal(t, int64(10), view.ID)
	assert.Equal(t, "customer1", view.Utorid)
	assert.Equal(t, "cashier1", view.CreatedBy)
	assert.Equal(t, models.TransactionPurchase, view.Type)
	assert.Equal(t, "bookstore", view.Remark)
	assert.Equal(t, []int64{3, 7}, view.Promotions)
	assert.Equal(t, 19.99, *view.Spent)
	assert.Equal(t, 80, *view.Earned)
	assert.Nil(t, view.Amount)
	assert.Nil(t, view.Redeemed)
	assert.Nil(t, view.RelatedID)
}

func TestFormatSuspiciousPurchaseReportsAccrual(t *testing.T) {
	owner := &models.User{ID: 1, Utorid: "customer1"}
	creator := &models.User{ID: 2, Utorid: "shady"}
	spent := 10.0
	trx := &models.Transaction{
		ID:         11,
		Type:       models.TransactionPurchase,
		Amount:     40,
		Spent:      &spent,
		Suspicious: true,
	}

	// Earned shows what will be credited once the flag clears, not zero.
	view := ledger.FormatTransaction(trx, owner, creator, nil, nil)
	assert.True(t, view.Suspicious)
	assert.Equal(t, 40, *view.Earned)
}

func TestFormatAdjustment(t *testing.T) {
	owner := &models.User{ID: 1, Utorid: "customer1"}
	creator := &models.User{ID: 3, Utorid: "manager1"}
	related := int64(10)
	trx := &models.Transaction{
		ID:        12,
		Type:      models.TransactionAdjustment,
		Amount:    -15,
		RelatedID: &related,
	}

	view := ledger.FormatTransaction(trx, owner, creator, nil, nil)
	assert.Equal(t, -15, *view.Amount)
	assert.Equal(t, related, *view.RelatedID)
	assert.Nil(t, view.Earned)
}

func TestFormatRedemption(t *testing.T) {
	owner := &models.User{ID: 1, Utorid: "customer1"}
	processor := &models.User{ID: 2, Utorid: "cashier1"}
	processorID := processor.ID
	trx := &models.Transaction{
		ID:          13,
		Type:        models.TransactionRedemption,
		Amount:      -60,
		ProcessedBy: &processorID,
	}

	view := ledger.FormatTransaction(trx, owner, owner, processor, nil)
	assert.Equal(t, 60, *view.Redeemed)
	assert.Equal(t, "cashier1", view.ProcessedBy)

	// Pending: no processor yet.
	trx.ProcessedBy = nil
	view = ledger.FormatTransaction(trx, owner, owner, nil, nil)
	assert.Equal(t, 60, *view.Redeemed)
	assert.Empty(t, view.ProcessedBy)
}

func TestFormatTransferLegs(t *testing.T) {
	sender := &models.User{ID: 1, Utorid: "sender1"}
	receiver := &models.User{ID: 2, Utorid: "receiver1"}

	senderLeg := &models.Transaction{
		ID:            14,
		Type:          models.TransactionTransfer,
		UserID:        sender.ID,
		Amount:        -30,
		RelatedUserID: &receiver.ID,
	}
	view := ledger.FormatTransaction(senderLeg, sender, sender, nil, nil)
	require.NotNil(t, view.Sent)
	assert.Equal(t, 30, *view.Sent)
	assert.Nil(t, view.Received)
	assert.Equal(t, receiver.ID, *view.RelatedID)

	receiverLeg := &models.Transaction{
		ID:            15,
		Type:          models.TransactionTransfer,
		UserID:        receiver.ID,
		Amount:        30,
		RelatedUserID: &sender.ID,
	}
	view = ledger.FormatTransaction(receiverLeg, receiver, sender, nil, nil)
	require.NotNil(t, view.Received)
	assert.Equal(t, 30, *view.Received)
	assert.Nil(t, view.Sent)
	assert.Equal(t, sender.ID, *view.RelatedID)
}

func TestFormatEventAward(t *testing.T) {
	guest := &models.User{ID: 1, Utorid: "guest1"}
	organizer := &models.User{ID: 2, Utorid: "organizer1"}
	eventID := int64(5)
	trx := &models.Transaction{
		ID:      16,
		Type:    models.TransactionEvent,
		Amount:  25,
		EventID: &eventID,
	}

	view := ledger.FormatTransaction(trx, guest, organizer, nil, nil)
	assert.Equal(t, 25, *view.Awarded)
	assert.Equal(t, eventID, *view.RelatedID)
}

func TestFormatNilPromotionsBecomesEmptySlice(t *testing.T) {
	owner := &models.User{ID: 1, Utorid: "customer1"}
	trx := &models.Transaction{ID: 17, Type: models.TransactionRedemption, Amount: -5}

	view := ledger.FormatTransaction(trx, owner, owner, nil, nil)
	require.NotNil(t, view.Promotions)
	assert.Empty(t, view.Promotions)
}
