// Package db holds the query helpers the ledger engine runs against the
// store. Every helper takes a bun.IDB so the same code serves both a plain
// connection and the transaction handle inside an atomic unit of work.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campus-loyalty/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// UserByID fetches a user by primary key.
func UserByID(ctx context.Context, idb bun.IDB, id int64) (*models.User, error) {
	var user models.User
	err := idb.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// UserByUtorid fetches a user by their campus identifier.
func UserByUtorid(ctx context.Context, idb bun.IDB, utorid string) (*models.User, error) {
	var user models.User
	err := idb.NewSelect().
		Model(&user).
		Where("utorid = ?", utorid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", utorid, models.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// AddPoints applies a signed point delta to a user's balance.
func AddPoints(ctx context.Context, idb bun.IDB, userID int64, delta int) error {
	_, err := idb.NewUpdate().
		Model((*models.User)(nil)).
		Set("points = points + ?", delta).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

// TransactionByID fetches a transaction by primary key.
func TransactionByID(ctx context.Context, idb bun.IDB, id int64) (*models.Transaction, error) {
	var trx models.Transaction
	err := idb.NewSelect().
		Model(&trx).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &trx, nil
}

// InsertTransaction persists a new ledger row and fills in its id.
func InsertTransaction(ctx context.Context, idb bun.IDB, trx *models.Transaction) error {
	_, err := idb.NewInsert().Model(trx).Exec(ctx)
	return err
}

// LinkPromotions records which promotions were applied to a transaction and,
// for one-time promotions, consumes the user's single use. The promotion_uses
// primary key is what turns a concurrent double-spend into a constraint
// violation instead of a silent second application.
func LinkPromotions(ctx context.Context, idb bun.IDB, trx *models.Transaction, promotions []models.Promotion) error {
	for _, promo := range promotions {
		link := models.TransactionPromotion{
			TransactionID: trx.ID,
			PromotionID:   promo.ID,
		}
		if _, err := idb.NewInsert().Model(&link).Exec(ctx); err != nil {
			return err
		}

		if promo.Type == models.PromotionOneTime {
			use := models.PromotionUse{
				PromotionID:   promo.ID,
				UserID:        trx.UserID,
				TransactionID: trx.ID,
			}
			if _, err := idb.NewInsert().Model(&use).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("promotion %d already used: %w", promo.ID, models.ErrInvalidState)
				}
				return err
			}
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint violation
// from the Postgres driver (SQLSTATE 23505) or the sqlite driver the tests
// run on. Anything else is a store failure and must propagate unchanged.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// PromotionIDsForTransaction returns the applied promotion ids, sorted.
func PromotionIDsForTransaction(ctx context.Context, idb bun.IDB, transactionID int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := idb.NewSelect().
		Column("promotion_id").
		Table("transaction_promotions").
		Where("transaction_id = ?", transactionID).
		Order("promotion_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// EventByID fetches an event by primary key.
func EventByID(ctx context.Context, idb bun.IDB, id int64) (*models.Event, error) {
	var event models.Event
	err := idb.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %d: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &event, nil
}

// ConfirmedGuests returns the users recorded as confirmed attendees of an
// event, ordered by id for deterministic award sequencing.
func ConfirmedGuests(ctx context.Context, idb bun.IDB, eventID int64) ([]models.User, error) {
	var guests []models.User
	err := idb.NewSelect().
		Model(&guests).
		Join("JOIN event_guests eg ON eg.user_id = \"user\".id").
		Where("eg.event_id = ? AND eg.confirmed", eventID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return guests, nil
}

// IsConfirmedGuest reports whether the user is a confirmed guest of the event.
func IsConfirmedGuest(ctx context.Context, idb bun.IDB, eventID, userID int64) (bool, error) {
	count, err := idb.NewSelect().
		Model((*models.EventGuest)(nil)).
		Where("event_id = ? AND user_id = ? AND confirmed", eventID, userID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsOrganizer reports whether the user organizes the event.
func IsOrganizer(ctx context.Context, idb bun.IDB, eventID, userID int64) (bool, error) {
	count, err := idb.NewSelect().
		Model((*models.EventOrganizer)(nil)).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SpendEventPoints moves awarded points out of the event's remaining pool.
func SpendEventPoints(ctx context.Context, idb bun.IDB, eventID int64, total int) error {
	_, err := idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("points_remain = points_remain - ?", total).
		Set("points_awarded = points_awarded + ?", total).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}

// TransactionsByUser returns a user's ledger rows, newest first.
func TransactionsByUser(ctx context.Context, idb bun.IDB, userID int64) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := idb.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
