// Package distribution implements the scheduled credit distribution pass
// that expires stale lots and issues the periodic grants webhooks cannot
// drive: free-tier monthly credits, lifetime plan drips and yearly
// subscription drips.
package distribution

import (
	"context"
	"time"

	"github.com/auroralabs/aurora/internal/billing"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result summarizes one distribution run.
type Result struct {
	UsersCount     int `json:"users_count"`     // Users scanned.
	ProcessedCount int `json:"processed_count"` // Users handled without error.
	ErrorCount     int `json:"error_count"`     // Users that failed; the run continues past them.
}

// Job walks all non-banned users in ID order and applies expiration plus the
// grant their current plan entitles them to. Every grant is period-keyed, so
// overlapping or repeated runs cannot double-issue.
type Job struct {
	db      *gorm.DB
	ledger  *credits.Ledger
	service *billing.Service
}

// NewJob constructs a distribution job.
func NewJob(db *gorm.DB, ledger *credits.Ledger, service *billing.Service) *Job {
	return &Job{db: db, ledger: ledger, service: service}
}

// Run executes one full distribution pass. A per-user failure is counted and
// logged but does not stop the run.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var result Result
	started := time.Now()
	pageSize := settings.DistributionPageSize()

	var lastID uint64
	for {
		if errCtx := ctx.Err(); errCtx != nil {
			return result, errCtx
		}

		var users []models.User
		if errFind := j.db.WithContext(ctx).
			Where("id > ? AND banned = ?", lastID, false).
			Order("id ASC").
			Limit(pageSize).
			Find(&users).Error; errFind != nil {
			return result, errFind
		}
		if len(users) == 0 {
			break
		}
		lastID = users[len(users)-1].ID

		memberships, payments, errLoad := j.loadPageState(ctx, users)
		if errLoad != nil {
			return result, errLoad
		}

		for i := range users {
			user := &users[i]
			result.UsersCount++
			if errUser := j.processUser(ctx, user.ID, memberships[user.ID], payments[user.ID]); errUser != nil {
				log.WithError(errUser).Warnf("distribution: user=%d failed", user.ID)
				result.ErrorCount++
				continue
			}
			result.ProcessedCount++
		}
	}

	log.Infof("distribution: run finished users=%d processed=%d errors=%d elapsed=%s",
		result.UsersCount, result.ProcessedCount, result.ErrorCount, time.Since(started).Round(time.Millisecond))
	return result, nil
}

// loadPageState batch-loads the active memberships and subscriptions for one
// page of users.
func (j *Job) loadPageState(ctx context.Context, users []models.User) (map[uint64][]models.UserLifetimeMembership, map[uint64][]models.PaymentRecord, error) {
	userIDs := make([]uint64, 0, len(users))
	for i := range users {
		userIDs = append(userIDs, users[i].ID)
	}

	var membershipRows []models.UserLifetimeMembership
	if errFind := j.db.WithContext(ctx).
		Where("user_id IN ? AND revoked_at IS NULL", userIDs).
		Order("id ASC").
		Find(&membershipRows).Error; errFind != nil {
		return nil, nil, errFind
	}
	memberships := make(map[uint64][]models.UserLifetimeMembership, len(membershipRows))
	for _, row := range membershipRows {
		memberships[row.UserID] = append(memberships[row.UserID], row)
	}

	var paymentRows []models.PaymentRecord
	if errFind := j.db.WithContext(ctx).
		Where("user_id IN ? AND subscription_id <> '' AND status IN ?", userIDs,
			[]string{models.PaymentStatusActive, models.PaymentStatusTrialing}).
		Order("id ASC").
		Find(&paymentRows).Error; errFind != nil {
		return nil, nil, errFind
	}
	payments := make(map[uint64][]models.PaymentRecord, len(paymentRows))
	for _, row := range paymentRows {
		payments[row.UserID] = append(payments[row.UserID], row)
	}

	return memberships, payments, nil
}

// processUser expires stale lots, then issues at most one grant according to
// the user's standing: lifetime membership first, then active subscription,
// then the free tier.
func (j *Job) processUser(ctx context.Context, userID uint64, memberships []models.UserLifetimeMembership, payments []models.PaymentRecord) error {
	now := time.Now().UTC()
	if errExpire := j.ledger.ProcessExpiredCredits(ctx, userID, now); errExpire != nil {
		return errExpire
	}

	catalog := j.service.Catalog()

	for i := range memberships {
		membership := &memberships[i]
		if catalog.IsLifetimePrice(membership.PriceID) {
			return j.service.HandleRenewal(ctx, nil, userID, membership.PriceID, &now)
		}
	}
	if len(memberships) > 0 {
		log.Warnf("distribution: user=%d holds a lifetime membership with no configured price, falling back to free tier", userID)
		return j.service.AddMonthlyFreeCredits(ctx, userID, now)
	}

	for i := range payments {
		record := &payments[i]
		plan, price := catalog.FindPlanByPrice(record.PriceID)
		if plan == nil || price == nil {
			log.Warnf("distribution: user=%d subscribed to unconfigured price %s, falling back to free tier", userID, record.PriceID)
			return j.service.AddMonthlyFreeCredits(ctx, userID, now)
		}
		if plan.IsLifetime {
			return j.service.HandleRenewal(ctx, nil, userID, record.PriceID, &now)
		}
		if price.Interval == "year" {
			// Yearly subscriptions drip monthly; the renewal webhook only
			// fires once a year.
			return j.service.HandleRenewal(ctx, nil, userID, record.PriceID, &now)
		}
		// Monthly subscriptions are granted by the renewal webhook.
		return nil
	}

	return j.service.AddMonthlyFreeCredits(ctx, userID, now)
}
