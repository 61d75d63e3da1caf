package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/database"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/permissions"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/metrics"
)

// GrantService creates atomic grants directly, outside the access-request
// flow. Granting the canonical read permission also settles any pending
// access requests the grantee has for the object.
type GrantService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger
}

// GrantOption customises the service.
type GrantOption func(*GrantService)

// WithGrantClock overrides the time source, primarily for tests.
func WithGrantClock(now func() time.Time) GrantOption {
	return func(s *GrantService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewGrantService constructs the service.
func NewGrantService(db *gorm.DB, opts ...GrantOption) (*GrantService, error) {
	if db == nil {
		return nil, errors.New("grant service: db is required")
	}

	s := &GrantService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("grants"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GrantInput describes one direct atomic grant.
type GrantInput struct {
	UserID     string
	Permission string
	ObjectType string
	ObjectURL  string

	// StartDate defaults to today; a nil EndDate grants indefinite access.
	StartDate *time.Time
	EndDate   *time.Time

	Comment string
	Reason  string
}

// Grant attaches the permission on the object to the user for the given
// window. The underlying AtomicGrant row is shared across users and created
// on first use.
func (s *GrantService) Grant(ctx context.Context, input GrantInput) (*models.UserAtomicGrant, error) {
	ctx = ensureContext(ctx)

	input.UserID = strings.TrimSpace(input.UserID)
	input.ObjectURL = strings.TrimSpace(input.ObjectURL)
	if input.UserID == "" || input.ObjectURL == "" {
		return nil, apperrors.NewBadRequest("user and object URL are required")
	}
	if !permissions.Known(input.Permission) {
		return nil, apperrors.ErrUnknownPermission.WithInternal(fmt.Errorf("permission %q", input.Permission))
	}

	objectType := input.ObjectType
	if objectType == "" {
		if perm, ok := permissions.Get(input.Permission); ok {
			objectType = perm.ObjectType
		}
	}

	start := models.DateOf(s.now())
	if input.StartDate != nil {
		start = models.DateOf(*input.StartDate)
	}
	var end *time.Time
	if input.EndDate != nil {
		e := models.DateOf(*input.EndDate)
		end = &e
	}
	reason := input.Reason
	if reason == "" {
		reason = models.ReasonAccessGranted
	}

	var granted *models.UserAtomicGrant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		granted, err = createGrantReturning(tx, createGrantParams{
			userID:     input.UserID,
			permission: input.Permission,
			objectType: objectType,
			objectURL:  input.ObjectURL,
			startDate:  start,
			endDate:    end,
			comment:    input.Comment,
			reason:     reason,
		})
		if err != nil {
			return err
		}

		if input.Permission == permissions.CaseView {
			return s.settlePendingRequests(tx, input.UserID, input.ObjectURL, start, end, input.Comment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("atomic grant created",
		zap.String("user_id", input.UserID),
		zap.String("permission", input.Permission),
		zap.String("object_url", input.ObjectURL))
	return granted, nil
}

// Revoke ends the user's grants for the permission on the object as of today.
// Already-expired grants are left untouched.
func (s *GrantService) Revoke(ctx context.Context, userID, permission, objectURL string) error {
	ctx = ensureContext(ctx)

	today := models.DateOf(s.now())
	ended := today.AddDate(0, 0, -1)
	res := s.db.WithContext(ctx).
		Model(&models.UserAtomicGrant{}).
		Where("user_id = ?", userID).
		Where("atomic_grant_id IN (?)", s.db.Model(&models.AtomicGrant{}).
			Select("id").
			Where("permission = ?", permission).
			Where("object_url = ?", objectURL)).
		Where("start_date <= ?", today).
		Where("(end_date IS NULL OR end_date >= ?)", today).
		Update("end_date", ended)
	if res.Error != nil {
		return fmt.Errorf("grant service: revoke: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithInternal(
			fmt.Errorf("no active grant of %s on %s for user %s", permission, objectURL, userID))
	}

	s.log.Info("atomic grant revoked",
		zap.String("user_id", userID),
		zap.String("permission", permission),
		zap.String("object_url", objectURL))
	return nil
}

// settlePendingRequests approves the grantee's pending requests for the
// object: the direct grant already gives them what they asked for.
func (s *GrantService) settlePendingRequests(tx *gorm.DB, userID, objectURL string, start time.Time, end *time.Time, comment string) error {
	if comment == "" {
		comment = "Access granted directly"
	}
	res := tx.Model(&models.AccessRequest{}).
		Where("requester_id = ?", userID).
		Where("object_url = ?", objectURL).
		Where("result = ?", models.AccessRequestPending).
		Updates(map[string]any{
			"result":          models.AccessRequestApproved,
			"handler_comment": comment,
			"handled_date":    models.DateOf(s.now()),
			"start_date":      start,
			"end_date":        end,
		})
	if res.Error != nil {
		return fmt.Errorf("settle pending requests: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.AccessRequests.WithLabelValues("superseded").Add(float64(res.RowsAffected))
	}
	return nil
}

type createGrantParams struct {
	userID          string
	permission      string
	objectType      string
	objectURL       string
	startDate       time.Time
	endDate         *time.Time
	comment         string
	reason          string
	accessRequestID *string
}

func createGrant(tx *gorm.DB, p createGrantParams) error {
	_, err := createGrantReturning(tx, p)
	return err
}

func createGrantReturning(tx *gorm.DB, p createGrantParams) (*models.UserAtomicGrant, error) {
	grant := models.AtomicGrant{
		Permission: p.permission,
		ObjectURL:  p.objectURL,
	}
	err := tx.Where(models.AtomicGrant{Permission: p.permission, ObjectURL: p.objectURL}).
		Attrs(models.AtomicGrant{ObjectType: p.objectType}).
		FirstOrCreate(&grant).Error
	if database.IsUniqueViolation(err) {
		// Lost a get-or-create race; the row exists now.
		err = tx.Where(models.AtomicGrant{Permission: p.permission, ObjectURL: p.objectURL}).
			First(&grant).Error
	}
	if err != nil {
		return nil, fmt.Errorf("get or create atomic grant: %w", err)
	}

	userGrant := &models.UserAtomicGrant{
		UserID:          p.userID,
		AtomicGrantID:   grant.ID,
		StartDate:       p.startDate,
		EndDate:         p.endDate,
		Comment:         p.comment,
		Reason:          p.reason,
		AccessRequestID: p.accessRequestID,
	}
	if err := tx.Create(userGrant).Error; err != nil {
		return nil, fmt.Errorf("create user grant: %w", err)
	}
	return userGrant, nil
}
