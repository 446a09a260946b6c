// Package promotion validates promotion sets against a user and computes the
// bonus points they grant. Evaluation is all-or-nothing: one bad promotion
// fails the whole set, and the caller's transaction rolls back with it.
package promotion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"campus-loyalty/internal/models"
	"campus-loyalty/internal/points"

	"github.com/uptrace/bun"
)

// Result is the outcome of a successful evaluation.
type Result struct {
	// Promotions are the resolved promotions, in ascending id order.
	Promotions []models.Promotion
	// ExtraPoints is the total bonus accrued across all promotions.
	ExtraPoints int
}

// Evaluator checks promotion eligibility. Now is injectable so window
// boundaries can be pinned in tests.
type Evaluator struct {
	Now func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{Now: time.Now}
}

// Evaluate resolves and validates the given promotion ids for userID.
// spentCents is nil outside a purchase context; promotions with a minimum
// spending requirement are rejected there. Must run on the same bun.IDB as
// the transaction write it supports so the one-time-use check shares its
// isolation.
//
// Evaluate itself only validates and sums. Linkage rows (and one-time use
// consumption) are written by the caller as part of the same atomic unit.
func (e *Evaluator) Evaluate(ctx context.Context, idb bun.IDB, ids []int64, userID int64, spentCents *int64) (*Result, error) {
	if len(ids) == 0 {
		return &Result{Promotions: []models.Promotion{}}, nil
	}

	// Duplicates collapse; order is irrelevant.
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("promotion id %d: %w", id, models.ErrInvalidInput)
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	var promotions []models.Promotion
	err := idb.NewSelect().
		Model(&promotions).
		Where("id IN (?)", bun.In(unique)).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	if len(promotions) != len(unique) {
		found := make(map[int64]bool, len(promotions))
		for _, p := range promotions {
			found[p.ID] = true
		}
		for _, id := range unique {
			if !found[id] {
				return nil, fmt.Errorf("promotion %d: %w", id, models.ErrNotFound)
			}
		}
	}

	now := e.Now()
	result := &Result{Promotions: promotions}

	for _, promo := range promotions {
		// Active window is [startTime, endTime).
		if now.Before(promo.StartTime) || !now.Before(promo.EndTime) {
			return nil, fmt.Errorf("promotion %d is not active: %w", promo.ID, models.ErrInvalidState)
		}

		if promo.MinSpending != nil {
			if spentCents == nil {
				return nil, fmt.Errorf("promotion %d requires a minimum spending: %w", promo.ID, models.ErrInvalidState)
			}
			if float64(*spentCents)/100 < *promo.MinSpending {
				return nil, fmt.Errorf("promotion %d minimum spending not met: %w", promo.ID, models.ErrInvalidState)
			}
		}

		if promo.Type == models.PromotionOneTime {
			used, err := e.alreadyUsed(ctx, idb, promo.ID, userID)
			if err != nil {
				return nil, err
			}
			if used {
				return nil, fmt.Errorf("promotion %d already used: %w", promo.ID, models.ErrInvalidState)
			}
		}

		if promo.Rate != nil && spentCents != nil {
			result.ExtraPoints += points.RateBonus(*spentCents, *promo.Rate)
		}
		if promo.Points != nil {
			result.ExtraPoints += *promo.Points
		}
	}

	return result, nil
}

func (e *Evaluator) alreadyUsed(ctx context.Context, idb bun.IDB, promotionID, userID int64) (bool, error) {
	count, err := idb.NewSelect().
		Model((*models.PromotionUse)(nil)).
		Where("promotion_id = ? AND user_id = ?", promotionID, userID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
