// Package ledger records money movements. Every Transaction row goes through Record or
// RecordRefunded so the fee split is computed in exactly one place.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateRef is returned when a Transaction already exists for the payment reference.
var ErrDuplicateRef = errors.New("transaction already recorded for this payment reference")

type FeeSplit struct {
	AmountCents          int64 `json:"amountCents"`
	PlatformFeeCents     int64 `json:"platformFeeCents"`
	CreatorEarningsCents int64 `json:"creatorEarningsCents"`
}

// Split computes fee = round(amount * rate), half away from zero, and gives the
// remainder to the creator.
func Split(amountCents int64, rate decimal.Decimal) FeeSplit {
	fee := decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
	return FeeSplit{
		AmountCents:          amountCents,
		PlatformFeeCents:     fee,
		CreatorEarningsCents: amountCents - fee,
	}
}

type Ledger struct {
	db   *gorm.DB
	rate decimal.Decimal
}

func New(database *gorm.DB, rate decimal.Decimal) *Ledger {
	return &Ledger{db: database, rate: rate}
}

func (l *Ledger) Rate() decimal.Decimal {
	return l.rate
}

func (l *Ledger) Split(amountCents int64) FeeSplit {
	return Split(amountCents, l.rate)
}

// Entry describes one money movement to record.
type Entry struct {
	CreatorID      string
	UserID         string
	Type           models.TransactionType
	AmountCents    int64
	Currency       string
	PaymentRef     string
	SubscriptionID *string
	PostID         *string
	TipID          *string
	Metadata       map[string]interface{}
}

// Record inserts the Transaction and credits the creator's earnings cache. tx must be the
// caller's database transaction: the entitlement write, the ledger row and the cache
// increment commit or roll back together.
func (l *Ledger) Record(tx *gorm.DB, e Entry) (*models.Transaction, error) {
	if e.PaymentRef == "" {
		return nil, apperrors.Invalid("payment reference is required")
	}
	if e.AmountCents <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	if e.CreatorID == "" || e.UserID == "" {
		return nil, apperrors.Invalid("creator and user are required")
	}

	row, err := l.insert(tx, e, models.TransactionCompleted)
	if err != nil {
		return nil, err
	}

	res := tx.Model(&models.CreatorProfile{}).
		Where("id = ?", e.CreatorID).
		Update("total_earnings_cents", gorm.Expr("total_earnings_cents + ?", row.CreatorEarningsCents))
	if res.Error != nil {
		return nil, fmt.Errorf("crediting earnings: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, apperrors.NotFound("creator")
	}
	return row, nil
}

// RecordRefunded books a charge that was returned to the buyer. The row keeps the audit
// trail and credits nobody: earnings only sum completed transactions.
func (l *Ledger) RecordRefunded(tx *gorm.DB, e Entry) (*models.Transaction, error) {
	if e.PaymentRef == "" {
		return nil, apperrors.Invalid("payment reference is required")
	}
	if e.AmountCents <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	return l.insert(tx, e, models.TransactionRefunded)
}

func (l *Ledger) insert(tx *gorm.DB, e Entry, status models.TransactionStatus) (*models.Transaction, error) {
	split := l.Split(e.AmountCents)
	row := &models.Transaction{
		CreatorID:            e.CreatorID,
		UserID:               e.UserID,
		Type:                 e.Type,
		Status:               status,
		AmountCents:          split.AmountCents,
		PlatformFeeCents:     split.PlatformFeeCents,
		CreatorEarningsCents: split.CreatorEarningsCents,
		Currency:             e.Currency,
		ProviderPaymentRef:   e.PaymentRef,
		SubscriptionID:       e.SubscriptionID,
		PostID:               e.PostID,
		TipID:                e.TipID,
		Metadata:             e.Metadata,
	}
	if err := tx.Create(row).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateRef
		}
		return nil, fmt.Errorf("creating transaction: %w", err)
	}
	return row, nil
}

// ExistsForRef reports whether a Transaction already carries ref.
func (l *Ledger) ExistsForRef(tx *gorm.DB, ref string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Transaction{}).Where("provider_payment_ref = ?", ref).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking payment reference: %w", err)
	}
	return count > 0, nil
}

// Drift is a creator whose cached earnings differed from the ledger.
type Drift struct {
	CreatorID   string `json:"creatorId"`
	CachedCents int64  `json:"cachedCents"`
	LedgerCents int64  `json:"ledgerCents"`
}

// EarningsFromLedger sums creator earnings over completed transactions.
func (l *Ledger) EarningsFromLedger(ctx context.Context, creatorID string) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(creator_earnings_cents), 0)").
		Where("creator_id = ? AND status = ?", creatorID, models.TransactionCompleted).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("summing earnings: %w", err)
	}
	return total, nil
}

// Recompute overwrites the creator's earnings cache with the ledger sum. The returned Drift
// is nil when the cache was already correct.
//
// The profile row is locked before the sum is read. Record increments the same row in the
// transaction that inserts the ledger row, so a concurrent Record either commits before the
// sum or waits for the overwrite and increments on top of it.
func (l *Ledger) Recompute(ctx context.Context, creatorID string) (*Drift, error) {
	var drift *Drift
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.CreatorProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "total_earnings_cents").First(&profile, "id = ?", creatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("creator")
			}
			return err
		}

		var total int64
		err := tx.Model(&models.Transaction{}).
			Select("COALESCE(SUM(creator_earnings_cents), 0)").
			Where("creator_id = ? AND status = ?", creatorID, models.TransactionCompleted).
			Scan(&total).Error
		if err != nil {
			return err
		}
		if total == profile.TotalEarningsCents {
			return nil
		}

		drift = &Drift{CreatorID: creatorID, CachedCents: profile.TotalEarningsCents, LedgerCents: total}
		return tx.Model(&models.CreatorProfile{}).Where("id = ?", creatorID).
			Update("total_earnings_cents", total).Error
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}

// RecomputeAll runs Recompute for every creator and returns the corrected ones.
func (l *Ledger) RecomputeAll(ctx context.Context) ([]Drift, error) {
	var ids []string
	if err := l.db.WithContext(ctx).Model(&models.CreatorProfile{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing creators: %w", err)
	}

	drifts := []Drift{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		d, err := l.Recompute(ctx, id)
		if err != nil {
			return drifts, fmt.Errorf("recomputing creator %s: %w", id, err)
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}

// TypeTotals aggregates completed transactions of one type.
type TypeTotals struct {
	Type                 models.TransactionType `json:"type"`
	Count                int64                  `json:"count"`
	AmountCents          int64                  `json:"amountCents"`
	PlatformFeeCents     int64                  `json:"platformFeeCents"`
	CreatorEarningsCents int64                  `json:"creatorEarningsCents"`
}

type Summary struct {
	CreatorID            string       `json:"creatorId,omitempty"`
	Count                int64        `json:"count"`
	AmountCents          int64        `json:"amountCents"`
	PlatformFeeCents     int64        `json:"platformFeeCents"`
	CreatorEarningsCents int64        `json:"creatorEarningsCents"`
	ByType               []TypeTotals `json:"byType"`
}

func (l *Ledger) summarize(ctx context.Context, creatorID string) (*Summary, error) {
	q := l.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("type, COUNT(*) AS count, "+
			"COALESCE(SUM(amount_cents), 0) AS amount_cents, "+
			"COALESCE(SUM(platform_fee_cents), 0) AS platform_fee_cents, "+
			"COALESCE(SUM(creator_earnings_cents), 0) AS creator_earnings_cents").
		Where("status = ?", models.TransactionCompleted)
	if creatorID != "" {
		q = q.Where("creator_id = ?", creatorID)
	}

	var rows []TypeTotals
	if err := q.Group("type").Order("type").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("summarizing transactions: %w", err)
	}

	s := &Summary{CreatorID: creatorID, ByType: rows}
	if s.ByType == nil {
		s.ByType = []TypeTotals{}
	}
	for _, r := range rows {
		s.Count += r.Count
		s.AmountCents += r.AmountCents
		s.PlatformFeeCents += r.PlatformFeeCents
		s.CreatorEarningsCents += r.CreatorEarningsCents
	}
	return s, nil
}

// Summary is the creator's earnings broken down by transaction type, read from the ledger.
func (l *Ledger) Summary(ctx context.Context, creatorID string) (*Summary, error) {
	return l.summarize(ctx, creatorID)
}

// PlatformTotals is the same breakdown over every creator.
func (l *Ledger) PlatformTotals(ctx context.Context) (*Summary, error) {
	return l.summarize(ctx, "")
}

type ListFilter struct {
	CreatorID string
	UserID    string
	Type      models.TransactionType
	Limit     int
	Offset    int
}

// List returns transactions newest first.
func (l *Ledger) List(ctx context.Context, f ListFilter) ([]models.Transaction, int64, error) {
	q := l.db.WithContext(ctx).Model(&models.Transaction{})
	if f.CreatorID != "" {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.Transaction
	if err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	return rows, total, nil
}
