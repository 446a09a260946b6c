// Package ledger implements the points-ledger transaction engine: per-type
// transaction creation, promotion application, redemption fulfillment,
// event awards, and the suspicious-flag reconciler. Every mutation runs in
// a single store transaction so balances and audit rows commit or roll back
// together.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campus-loyalty/internal/ledger/db"
	"campus-loyalty/internal/ledger/promotion"
	"campus-loyalty/internal/logger"
	"campus-loyalty/internal/models"
	"campus-loyalty/internal/points"

	"github.com/uptrace/bun"
)

// EventPublisher streams ledger events after a successful commit. Publishing
// is best-effort: a broker failure never rolls back a committed transaction.
type EventPublisher interface {
	PublishTransactionCreated(view TransactionView) error
	PublishSuspiciousFlagSet(view TransactionView) error
	PublishRedemptionProcessed(view TransactionView) error
}

type TransactionService struct {
	DB         *bun.DB
	Promotions *promotion.Evaluator
	Publisher  EventPublisher
	Log        *logger.Logger
}

func NewTransactionService(bunDB *bun.DB, evaluator *promotion.Evaluator, publisher EventPublisher, log *logger.Logger) *TransactionService {
	return &TransactionService{
		DB:         bunDB,
		Promotions: evaluator,
		Publisher:  publisher,
		Log:        log,
	}
}

type PurchaseRequest struct {
	Utorid       string  `json:"utorid"`
	Spent        float64 `json:"spent"`
	PromotionIDs []int64 `json:"promotionIds"`
	Remark       string  `json:"remark"`
}

type AdjustmentRequest struct {
	Utorid       string  `json:"utorid"`
	Amount       int     `json:"amount"`
	RelatedID    int64   `json:"relatedId"`
	PromotionIDs []int64 `json:"promotionIds"`
	Remark       string  `json:"remark"`
}

type TransferRequest struct {
	Receiver string `json:"receiver"`
	Amount   int    `json:"amount"`
	Remark   string `json:"remark"`
}

type RedemptionRequest struct {
	Amount int    `json:"amount"`
	Remark string `json:"remark"`
}

type EventAwardRequest struct {
	EventID   int64  `json:"eventId"`
	Amount    int    `json:"amount"`
	Recipient string `json:"recipient"`
	Remark    string `json:"remark"`
}

// CreatePurchase records a point-of-sale purchase for the target user:
// base accrual plus promotion bonuses, credited immediately unless the
// recording cashier is flagged suspicious, in which case the audit row is
// written but the credit is withheld until the flag is cleared.
func (s *TransactionService) CreatePurchase(ctx context.Context, actorID int64, req PurchaseRequest) (*TransactionView, error) {
	if req.Spent <= 0 {
		return nil, fmt.Errorf("spent must be positive: %w", models.ErrInvalidInput)
	}
	spentCents, err := points.ToCents(req.Spent)
	if err != nil {
		return nil, fmt.Errorf("spent: %v: %w", err, models.ErrInvalidInput)
	}

	var view *TransactionView
	err = s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		actor, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !actor.Role.AtLeast(models.RoleCashier) {
			return fmt.Errorf("recording a purchase requires cashier role: %w", models.ErrForbidden)
		}

		target, err := db.UserByUtorid(ctx, tx, req.Utorid)
		if err != nil {
			return err
		}

		result, err := s.Promotions.Evaluate(ctx, tx, req.PromotionIDs, target.ID, &spentCents)
		if err != nil {
			return err
		}

		earned := points.BaseEarned(spentCents) + result.ExtraPoints
		suspicious := actor.Role == models.RoleCashier && actor.Suspicious
		spent := float64(spentCents) / 100

		trx := &models.Transaction{
			Type:       models.TransactionPurchase,
			UserID:     target.ID,
			CreatedBy:  actor.ID,
			Amount:     earned,
			Spent:      &spent,
			Suspicious: suspicious,
			Remark:     req.Remark,
			CreatedAt:  time.Now(),
		}
		if err := db.InsertTransaction(ctx, tx, trx); err != nil {
			return err
		}
		if err := db.LinkPromotions(ctx, tx, trx, result.Promotions); err != nil {
			return err
		}

		// Suspicious purchases keep the audit row but withhold the credit
		// until the flag is cleared.
		if !suspicious && earned > 0 {
			if err := db.AddPoints(ctx, tx, target.ID, earned); err != nil {
				return err
			}
		}

		view = FormatTransaction(trx, target, actor, nil, promotionIDs(result.Promotions))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransaction("PURCHASE", view.ID, fmt.Sprintf("user %s earned %d", view.Utorid, *view.Earned))
	s.publishCreated(view)
	return view, nil
}

// CreateAdjustment records a manager correction against a prior transaction.
// Adjustments are the one path allowed to drive a balance below zero.
func (s *TransactionService) CreateAdjustment(ctx context.Context, actorID int64, req AdjustmentRequest) (*TransactionView, error) {
	var view *TransactionView
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		actor, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !actor.Role.AtLeast(models.RoleManager) {
			return fmt.Errorf("adjustments require manager role: %w", models.ErrForbidden)
		}

		related, err := db.TransactionByID(ctx, tx, req.RelatedID)
		if err != nil {
			return err
		}

		var target *models.User
		if req.Utorid != "" {
			target, err = db.UserByUtorid(ctx, tx, req.Utorid)
			if err != nil {
				return err
			}
			if target.ID != related.UserID {
				return fmt.Errorf("user does not match the related transaction: %w", models.ErrInvalidInput)
			}
		} else {
			target, err = db.UserByID(ctx, tx, related.UserID)
			if err != nil {
				return err
			}
		}

		// Non-purchase context: promotions with a minimum spending are
		// rejected by the evaluator.
		result, err := s.Promotions.Evaluate(ctx, tx, req.PromotionIDs, target.ID, nil)
		if err != nil {
			return err
		}

		total := req.Amount + result.ExtraPoints
		trx := &models.Transaction{
			Type:      models.TransactionAdjustment,
			UserID:    target.ID,
			CreatedBy: actor.ID,
			Amount:    total,
			Remark:    req.Remark,
			RelatedID: &related.ID,
			CreatedAt: time.Now(),
		}
		if err := db.InsertTransaction(ctx, tx, trx); err != nil {
			return err
		}
		if err := db.LinkPromotions(ctx, tx, trx, result.Promotions); err != nil {
			return err
		}

		if total != 0 {
			if err := db.AddPoints(ctx, tx, target.ID, total); err != nil {
				return err
			}
		}

		view = FormatTransaction(trx, target, actor, nil, promotionIDs(result.Promotions))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransaction("ADJUSTMENT", view.ID, fmt.Sprintf("user %s adjusted by %d", view.Utorid, *view.Amount))
	s.publishCreated(view)
	return view, nil
}

// CreateTransfer moves points from the acting user to another user,
// recording a debit leg and a credit leg that back-reference each other.
func (s *TransactionService) CreateTransfer(ctx context.Context, actorID int64, req TransferRequest) (*TransactionView, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %w", models.ErrInvalidInput)
	}

	var view *TransactionView
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		sender, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !sender.Verified {
			return fmt.Errorf("transfers require a verified account: %w", models.ErrForbidden)
		}
		if sender.Points < req.Amount {
			return fmt.Errorf("insufficient balance: %w", models.ErrInvalidInput)
		}

		receiver, err := db.UserByUtorid(ctx, tx, req.Receiver)
		if err != nil {
			return err
		}
		if receiver.ID == sender.ID {
			return fmt.Errorf("cannot transfer points to yourself: %w", models.ErrInvalidInput)
		}

		if err := db.AddPoints(ctx, tx, sender.ID, -req.Amount); err != nil {
			return err
		}
		if err := db.AddPoints(ctx, tx, receiver.ID, req.Amount); err != nil {
			return err
		}

		now := time.Now()
		senderLeg := &models.Transaction{
			Type:          models.TransactionTransfer,
			UserID:        sender.ID,
			CreatedBy:     sender.ID,
			Amount:        -req.Amount,
			Remark:        req.Remark,
			RelatedUserID: &receiver.ID,
			CreatedAt:     now,
		}
		if err := db.InsertTransaction(ctx, tx, senderLeg); err != nil {
			return err
		}

		receiverLeg := &models.Transaction{
			Type:          models.TransactionTransfer,
			UserID:        receiver.ID,
			CreatedBy:     sender.ID,
			Amount:        req.Amount,
			Remark:        req.Remark,
			RelatedUserID: &sender.ID,
			RelatedID:     &senderLeg.ID,
			CreatedAt:     now,
		}
		if err := db.InsertTransaction(ctx, tx, receiverLeg); err != nil {
			return err
		}

		// Mutual back-reference between the two legs.
		_, err = tx.NewUpdate().
			Model((*models.Transaction)(nil)).
			Set("related_id = ?", receiverLeg.ID).
			Where("id = ?", senderLeg.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		senderLeg.RelatedID = &receiverLeg.ID

		view = FormatTransaction(senderLeg, sender, sender, nil, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransaction("TRANSFER", view.ID, fmt.Sprintf("%s sent %d to %s", view.Utorid, *view.Sent, req.Receiver))
	s.publishCreated(view)
	return view, nil
}

// CreateRedemption records a pending redemption request. The balance is not
// touched here: the debit lands when a cashier marks the request processed,
// so an unfulfilled request can never hold a user's balance negative.
func (s *TransactionService) CreateRedemption(ctx context.Context, actorID int64, req RedemptionRequest) (*TransactionView, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("redemption amount must be positive: %w", models.ErrInvalidInput)
	}

	var view *TransactionView
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		actor, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !actor.Verified {
			return fmt.Errorf("redemptions require a verified account: %w", models.ErrForbidden)
		}
		if actor.Points < req.Amount {
			return fmt.Errorf("insufficient balance: %w", models.ErrInvalidInput)
		}

		trx := &models.Transaction{
			Type:      models.TransactionRedemption,
			UserID:    actor.ID,
			CreatedBy: actor.ID,
			Amount:    -req.Amount,
			Remark:    req.Remark,
			CreatedAt: time.Now(),
		}
		if err := db.InsertTransaction(ctx, tx, trx); err != nil {
			return err
		}

		view = FormatTransaction(trx, actor, actor, nil, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransaction("REDEMPTION", view.ID, fmt.Sprintf("%s requested %d", view.Utorid, *view.Redeemed))
	s.publishCreated(view)
	return view, nil
}

// MarkRedemptionProcessed fulfills a pending redemption: the acting cashier
// is stamped on the row and the owner's balance takes the deferred debit.
func (s *TransactionService) MarkRedemptionProcessed(ctx context.Context, actorID, transactionID int64) (*TransactionView, error) {
	var view *TransactionView
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		actor, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !actor.Role.AtLeast(models.RoleCashier) {
			return fmt.Errorf("processing redemptions requires cashier role: %w", models.ErrForbidden)
		}

		trx, err := db.TransactionByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if trx.Type != models.TransactionRedemption {
			return fmt.Errorf("transaction %d is not a redemption: %w", transactionID, models.ErrInvalidInput)
		}
		if trx.ProcessedBy != nil {
			return fmt.Errorf("redemption %d already processed: %w", transactionID, models.ErrInvalidInput)
		}

		owner, err := db.UserByID(ctx, tx, trx.UserID)
		if err != nil {
			return err
		}
		// Amount is negative; the deferred debit must not overdraw the
		// balance the owner holds now, which may be lower than when the
		// request passed its own check.
		if owner.Points+trx.Amount < 0 {
			return fmt.Errorf("insufficient balance to fulfill redemption %d: %w", transactionID, models.ErrInvalidState)
		}

		_, err = tx.NewUpdate().
			Model((*models.Transaction)(nil)).
			Set("processed_by = ?", actor.ID).
			Where("id = ?", trx.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		trx.ProcessedBy = &actor.ID

		if err := db.AddPoints(ctx, tx, trx.UserID, trx.Amount); err != nil {
			return err
		}

		creator, err := db.UserByID(ctx, tx, trx.CreatedBy)
		if err != nil {
			return err
		}

		view = FormatTransaction(trx, owner, creator, actor, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransaction("PROCESSED", view.ID, fmt.Sprintf("redemption fulfilled by user %d", actorID))
	if s.Publisher != nil {
		if err := s.Publisher.PublishRedemptionProcessed(*view); err != nil {
			s.logError(fmt.Sprintf("publish redemption processed: %v", err))
		}
	}
	return view, nil
}

// AwardEventPoints credits event points to one confirmed guest or to all of
// them, decrementing the event's remaining pool in the same unit of work.
// Managers may award for any event; below manager the actor must organize it.
func (s *TransactionService) AwardEventPoints(ctx context.Context, actorID int64, req EventAwardRequest) ([]*TransactionView, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("award amount must be positive: %w", models.ErrInvalidInput)
	}

	var views []*TransactionView
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		actor, err := db.UserByID(ctx, tx, actorID)
		if err != nil {
			return err
		}

		event, err := db.EventByID(ctx, tx, req.EventID)
		if err != nil {
			return err
		}

		if !actor.Role.AtLeast(models.RoleManager) {
			organizer, err := db.IsOrganizer(ctx, tx, event.ID, actor.ID)
			if err != nil {
				return err
			}
			if !organizer {
				return fmt.Errorf("awarding event points requires manager role or organizer standing: %w", models.ErrForbidden)
			}
		}

		var recipients []models.User
		if req.Recipient != "" {
			recipient, err := db.UserByUtorid(ctx, tx, req.Recipient)
			if err != nil {
				return err
			}
			confirmed, err := db.IsConfirmedGuest(ctx, tx, event.ID, recipient.ID)
			if err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("user %q is not a confirmed guest of event %d: %w", req.Recipient, event.ID, models.ErrInvalidInput)
			}
			recipients = []models.User{*recipient}
		} else {
			recipients, err = db.ConfirmedGuests(ctx, tx, event.ID)
			if err != nil {
				return err
			}
			if len(recipients) == 0 {
				return fmt.Errorf("event %d has no confirmed guests: %w", event.ID, models.ErrInvalidInput)
			}
		}

		total := req.Amount * len(recipients)
		if event.PointsRemain < total {
			return fmt.Errorf("event %d has insufficient remaining points: %w", event.ID, models.ErrInvalidInput)
		}

		now := time.Now()
		for i := range recipients {
			recipient := recipients[i]
			trx := &models.Transaction{
				Type:      models.TransactionEvent,
				UserID:    recipient.ID,
				CreatedBy: actor.ID,
				Amount:    req.Amount,
				Remark:    req.Remark,
				EventID:   &event.ID,
				CreatedAt: now,
			}
			if err := db.InsertTransaction(ctx, tx, trx); err != nil {
				return err
			}
			if err := db.AddPoints(ctx, tx, recipient.ID, req.Amount); err != nil {
				return err
			}
			views = append(views, FormatTransaction(trx, &recipient, actor, nil, nil))
		}

		return db.SpendEventPoints(ctx, tx, event.ID, total)
	})
	if err != nil {
		return nil, err
	}

	for _, view := range views {
		s.logTransaction("EVENT", view.ID, fmt.Sprintf("awarded %d to %s", *view.Awarded, view.Utorid))
		s.publishCreated(view)
	}
	return views, nil
}

// SetSuspicious toggles a transaction's suspicious flag and applies the
// matching balance correction exactly once. Flag on removes the credited
// amount; flag off restores it; setting the current value is a no-op. Rows
// with a non-positive amount carry no balance effect.
func (s *TransactionService) SetSuspicious(ctx context.Context, transactionID int64, suspicious bool) (*TransactionView, error) {
	var view *TransactionView
	var changed bool
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		trx, err := db.TransactionByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if trx.Suspicious != suspicious {
			changed = true

			delta := 0
			if trx.Amount > 0 {
				if suspicious {
					delta = -trx.Amount
				} else {
					delta = trx.Amount
				}
			}
			if delta != 0 {
				if err := db.AddPoints(ctx, tx, trx.UserID, delta); err != nil {
					return err
				}
			}

			_, err = tx.NewUpdate().
				Model((*models.Transaction)(nil)).
				Set("suspicious = ?", suspicious).
				Where("id = ?", trx.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			trx.Suspicious = suspicious
		}

		view, err = s.loadView(ctx, tx, trx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logTransaction("SUSPICIOUS", view.ID, fmt.Sprintf("flag set to %t", suspicious))
		if s.Publisher != nil {
			if err := s.Publisher.PublishSuspiciousFlagSet(*view); err != nil {
				s.logError(fmt.Sprintf("publish suspicious flag: %v", err))
			}
		}
	}
	return view, nil
}

// GetTransaction returns the formatted projection of a single ledger row.
func (s *TransactionService) GetTransaction(ctx context.Context, transactionID int64) (*TransactionView, error) {
	trx, err := db.TransactionByID(ctx, s.DB, transactionID)
	if err != nil {
		return nil, err
	}
	return s.loadView(ctx, s.DB, trx)
}

// Transaction returns the raw stored row, for callers that need more than
// the projection (QR rendering, ownership checks).
func (s *TransactionService) Transaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	return db.TransactionByID(ctx, s.DB, transactionID)
}

// ListUserTransactions returns a user's ledger, newest first.
func (s *TransactionService) ListUserTransactions(ctx context.Context, userID int64) ([]*TransactionView, error) {
	rows, err := db.TransactionsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*TransactionView, 0, len(rows))
	for i := range rows {
		view, err := s.loadView(ctx, s.DB, &rows[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// loadView joins the users and promotion links a row needs for formatting.
func (s *TransactionService) loadView(ctx context.Context, idb bun.IDB, trx *models.Transaction) (*TransactionView, error) {
	owner, err := db.UserByID(ctx, idb, trx.UserID)
	if err != nil {
		return nil, err
	}
	creator, err := db.UserByID(ctx, idb, trx.CreatedBy)
	if err != nil {
		return nil, err
	}

	var processor *models.User
	if trx.ProcessedBy != nil {
		processor, err = db.UserByID(ctx, idb, *trx.ProcessedBy)
		if err != nil {
			return nil, err
		}
	}

	ids, err := db.PromotionIDsForTransaction(ctx, idb, trx.ID)
	if err != nil {
		return nil, err
	}

	return FormatTransaction(trx, owner, creator, processor, ids), nil
}

func promotionIDs(promotions []models.Promotion) []int64 {
	ids := make([]int64, 0, len(promotions))
	for _, p := range promotions {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *TransactionService) publishCreated(view *TransactionView) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishTransactionCreated(*view); err != nil {
		s.logError(fmt.Sprintf("publish transaction created: %v", err))
	}
}

func (s *TransactionService) logTransaction(action string, id int64, message string) {
	if s.Log != nil {
		s.Log.LogTransaction(action, id, message)
	}
}

func (s *TransactionService) logError(message string) {
	if s.Log != nil {
		s.Log.Error("LEDGER", message)
	}
}
