package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditRetryListKey is the durable redis list holding audit rows whose
// best-effort post-commit insert failed, drained by pkg/scheduler (§7).
const AuditRetryListKey = "audit:retry"

// CreateAuditInTx appends an audit row within the same transaction as the
// business mutation it records. Every audit the reservation and lifecycle
// services write goes through this method; none of them calls
// CreateAuditBestEffort.
func (f *Facade) CreateAuditInTx(tx *gorm.DB, audit *models.AppointmentAudit) error {
	if err := tx.Create(audit).Error; err != nil {
		return fmt.Errorf("creating audit entry: %w", err)
	}
	return nil
}

// CreateAuditBestEffort inserts an audit row outside any business
// transaction, per §7: "Audit writes are attempted best-effort AFTER the
// business transaction commits — an audit failure must not revert the
// business operation." On failure the row is pushed to a durable redis
// list instead, for pkg/scheduler's cron job to retry; with a nil redis
// client (or a row that cannot be marshalled) the failed row is dropped.
func (f *Facade) CreateAuditBestEffort(ctx context.Context, redisClient *redis.Client, audit *models.AppointmentAudit) {
	if err := f.db.WithContext(ctx).Create(audit).Error; err != nil {
		f.enqueueAuditRetry(ctx, redisClient, audit)
	}
}

func (f *Facade) enqueueAuditRetry(ctx context.Context, redisClient *redis.Client, audit *models.AppointmentAudit) {
	if redisClient == nil {
		return
	}
	payload, err := json.Marshal(audit)
	if err != nil {
		return
	}
	redisClient.RPush(ctx, AuditRetryListKey, payload)
}

// DrainAuditRetryQueue pops up to max pending audit rows from the retry
// list and re-attempts their insert, returning how many succeeded and how
// many failed (counted per §7's "logged and counted"). A row whose insert
// fails is re-queued for a later pass; a payload that cannot be decoded is
// counted as failed and dropped.
func (f *Facade) DrainAuditRetryQueue(ctx context.Context, redisClient *redis.Client, max int) (succeeded, failed int, err error) {
	if redisClient == nil {
		return 0, 0, nil
	}
	for i := 0; i < max; i++ {
		payload, popErr := redisClient.LPop(ctx, AuditRetryListKey).Result()
		if popErr == redis.Nil {
			break
		}
		if popErr != nil {
			return succeeded, failed, fmt.Errorf("draining audit retry queue: %w", popErr)
		}
		var audit models.AppointmentAudit
		if jsonErr := json.Unmarshal([]byte(payload), &audit); jsonErr != nil {
			failed++
			continue
		}
		if createErr := f.db.WithContext(ctx).Create(&audit).Error; createErr != nil {
			failed++
			redisClient.RPush(ctx, AuditRetryListKey, payload)
			continue
		}
		succeeded++
	}
	return succeeded, failed, nil
}

// NewAuditDetail marshals an arbitrary structured value into the JSON
// column AppointmentAudit.Detail expects.
func NewAuditDetail(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
