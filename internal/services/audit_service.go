package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/pkg/logger"
)

// AuditService persists an append-only trail of access decisions and
// access-request transitions.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// AuditEntry describes one event to record.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	ObjectURL string
	Result    string
	Metadata  map[string]any
}

// Audit actions.
const (
	AuditActionDecision       = "access.decision"
	AuditActionRequestCreated = "access_request.created"
	AuditActionRequestHandled = "access_request.handled"
	AuditActionGrantCreated   = "grant.created"
	AuditActionGrantRevoked   = "grant.revoked"
)

// Record writes one audit entry. Failures are logged, not propagated: an
// audit hiccup must not fail the operation being audited.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	ctx = ensureContext(ctx)

	var metadata datatypes.JSON
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			s.log.Warn("failed to encode audit metadata", zap.Error(err))
		} else {
			metadata = datatypes.JSON(raw)
		}
	}

	row := &models.AuditLog{
		UserID:    entry.UserID,
		Username:  entry.Username,
		Action:    entry.Action,
		ObjectURL: entry.ObjectURL,
		Result:    entry.Result,
		Metadata:  metadata,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", entry.Action), zap.Error(err))
	}
}

// CleanupOlderThan deletes audit entries older than the retention window and
// returns how many were removed.
func (s *AuditService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensureContext(ctx)
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListRecent returns the most recent audit entries, newest first.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.AuditLog
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: list: %w", err)
	}
	return rows, nil
}
