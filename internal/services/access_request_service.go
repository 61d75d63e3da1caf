// Package services contains the write-side business logic: creating and
// handling access requests, granting atomic permissions, and audit logging.
// Services operate on *gorm.DB and keep all multi-row updates transactional.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/engine"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/notifications"
	"github.com/vngrid/caseguard/internal/permissions"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/metrics"
)

// AccessRequestService manages the access-request lifecycle.
type AccessRequestService struct {
	db       *gorm.DB
	engine   *engine.Engine
	notifier notifications.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// AccessRequestOption customises the service.
type AccessRequestOption func(*AccessRequestService)

// WithRequestClock overrides the time source, primarily for tests.
func WithRequestClock(now func() time.Time) AccessRequestOption {
	return func(s *AccessRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAccessRequestService constructs the service. The notifier may be a noop;
// it is invoked after the handling transaction commits and never influences
// the outcome.
func NewAccessRequestService(db *gorm.DB, eng *engine.Engine, notifier notifications.Notifier, opts ...AccessRequestOption) (*AccessRequestService, error) {
	if db == nil {
		return nil, errors.New("access request service: db is required")
	}
	if eng == nil {
		return nil, errors.New("access request service: engine is required")
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}

	s := &AccessRequestService{
		db:       db,
		engine:   eng,
		notifier: notifier,
		now:      time.Now,
		log:      logger.WithModule("access_requests"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAccessRequestInput carries the fields of a new access request.
type CreateAccessRequestInput struct {
	RequesterID string
	ObjectURL   string
	Comment     string
}

// Create files a new pending access request. It is rejected when the
// requester already has a pending request for the object, or can already
// view it.
func (s *AccessRequestService) Create(ctx context.Context, input CreateAccessRequestInput) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	input.RequesterID = strings.TrimSpace(input.RequesterID)
	input.ObjectURL = strings.TrimSpace(input.ObjectURL)
	if input.RequesterID == "" || input.ObjectURL == "" {
		return nil, apperrors.NewBadRequest("requester and object URL are required")
	}

	var pending int64
	err := s.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("requester_id = ?", input.RequesterID).
		Where("object_url = ?", input.ObjectURL).
		Where("result = ?", models.AccessRequestPending).
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("access request service: check pending: %w", err)
	}
	if pending > 0 {
		return nil, apperrors.ErrDuplicateRequest
	}

	canView, err := s.engine.Can(ctx, input.RequesterID, input.ObjectURL, permissions.CaseView)
	if err != nil {
		return nil, err
	}
	if canView {
		return nil, apperrors.ErrDuplicateRequest
	}

	request := &models.AccessRequest{
		RequesterID:   input.RequesterID,
		ObjectURL:     input.ObjectURL,
		Comment:       input.Comment,
		Result:        models.AccessRequestPending,
		RequestedDate: models.DateOf(s.now()),
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, fmt.Errorf("access request service: create: %w", err)
	}

	metrics.AccessRequests.WithLabelValues("created").Inc()
	s.log.Info("access request created",
		zap.String("request_id", request.ID),
		zap.String("requester_id", request.RequesterID),
		zap.String("object_url", request.ObjectURL))
	return request, nil
}

// HandleAccessRequestInput carries a handler's decision on a pending request.
type HandleAccessRequestInput struct {
	RequestID      string
	HandlerID      string
	Result         string
	HandlerComment string

	// Permissions to grant on approval. Approving with an empty list is
	// rejected.
	Permissions []string

	// Validity window for the granted access. A nil StartDate defaults to
	// the handling date; a nil EndDate grants indefinite access.
	StartDate *time.Time
	EndDate   *time.Time
}

// Handle decides a pending access request. Approval creates the atomic grants
// and closes any other pending requests of the same requester for the same
// object in one transaction; the requester is notified after commit.
// Handling a request twice fails with ErrAlreadyHandled.
func (s *AccessRequestService) Handle(ctx context.Context, input HandleAccessRequestInput) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	if input.Result != models.AccessRequestApproved && input.Result != models.AccessRequestRejected {
		return nil, apperrors.ErrMissingPermissions
	}

	grantNames := normalisePermissions(input.Permissions)
	if input.Result == models.AccessRequestApproved {
		if len(grantNames) == 0 {
			return nil, apperrors.ErrMissingPermissions
		}
		for _, name := range grantNames {
			if !permissions.Known(name) {
				return nil, apperrors.ErrUnknownPermission.WithInternal(fmt.Errorf("permission %q", name))
			}
		}
	}

	var request models.AccessRequest
	err := s.db.WithContext(ctx).First(&request, "id = ?", input.RequestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("access request %s", input.RequestID))
	}
	if err != nil {
		return nil, fmt.Errorf("access request service: load: %w", err)
	}
	if !request.Pending() {
		return nil, apperrors.ErrAlreadyHandled
	}

	now := s.now()
	handled := models.DateOf(now)
	start := handled
	if input.StartDate != nil {
		start = models.DateOf(*input.StartDate)
	}
	var end *time.Time
	if input.EndDate != nil {
		e := models.DateOf(*input.EndDate)
		end = &e
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"result":          input.Result,
			"handler_id":      input.HandlerID,
			"handler_comment": input.HandlerComment,
			"handled_date":    handled,
		}
		if input.Result == models.AccessRequestApproved {
			updates["start_date"] = start
			updates["end_date"] = end
		}

		// Guard against a concurrent handler deciding the same request.
		res := tx.Model(&models.AccessRequest{}).
			Where("id = ?", request.ID).
			Where("result = ?", models.AccessRequestPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrAlreadyHandled
		}

		if input.Result != models.AccessRequestApproved {
			return nil
		}

		for _, name := range grantNames {
			if err := createGrant(tx, createGrantParams{
				userID:          request.RequesterID,
				permission:      name,
				objectType:      models.ObjectTypeCase,
				objectURL:       request.ObjectURL,
				startDate:       start,
				endDate:         end,
				comment:         input.HandlerComment,
				reason:          models.ReasonAccessGranted,
				accessRequestID: &request.ID,
			}); err != nil {
				return err
			}
		}

		return s.supersedePending(tx, &request, input.HandlerID, start, end)
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(&request, "id = ?", request.ID).Error; err != nil {
		return nil, fmt.Errorf("access request service: reload: %w", err)
	}

	metrics.AccessRequests.WithLabelValues(input.Result).Inc()
	s.log.Info("access request handled",
		zap.String("request_id", request.ID),
		zap.String("result", request.Result),
		zap.String("handler_id", input.HandlerID))

	s.notifyHandled(ctx, &request)
	return &request, nil
}

// supersedePending closes the requester's other pending requests for the same
// object. Approving one request satisfies them all; the duplicates are marked
// approved with a comment pointing at the deciding request.
func (s *AccessRequestService) supersedePending(tx *gorm.DB, handled *models.AccessRequest, handlerID string, start time.Time, end *time.Time) error {
	res := tx.Model(&models.AccessRequest{}).
		Where("requester_id = ?", handled.RequesterID).
		Where("object_url = ?", handled.ObjectURL).
		Where("result = ?", models.AccessRequestPending).
		Where("id <> ?", handled.ID).
		Updates(map[string]any{
			"result":          models.AccessRequestApproved,
			"handler_id":      handlerID,
			"handler_comment": fmt.Sprintf("Superseded by request %s", handled.ID),
			"handled_date":    models.DateOf(s.now()),
			"start_date":      start,
			"end_date":        end,
		})
	if res.Error != nil {
		return fmt.Errorf("supersede pending requests: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.AccessRequests.WithLabelValues("superseded").Add(float64(res.RowsAffected))
	}
	return nil
}

func (s *AccessRequestService) notifyHandled(ctx context.Context, request *models.AccessRequest) {
	var requester models.User
	if err := s.db.WithContext(ctx).First(&requester, "id = ?", request.RequesterID).Error; err != nil {
		s.log.Warn("failed to load requester for notification",
			zap.String("request_id", request.ID), zap.Error(err))
		return
	}
	if err := s.notifier.RequestHandled(ctx, request, &requester); err != nil {
		s.log.Warn("failed to notify requester",
			zap.String("request_id", request.ID), zap.Error(err))
	}
}

// ListAccessRequestsOptions filters List results. Zero values match all.
type ListAccessRequestsOptions struct {
	RequesterID string
	ObjectURL   string
	PendingOnly bool
}

// List returns access requests matching the options, newest first.
func (s *AccessRequestService) List(ctx context.Context, opts ListAccessRequestsOptions) ([]models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.AccessRequest{})
	if opts.RequesterID != "" {
		query = query.Where("requester_id = ?", opts.RequesterID)
	}
	if opts.ObjectURL != "" {
		query = query.Where("object_url = ?", opts.ObjectURL)
	}
	if opts.PendingOnly {
		query = query.Where("result = ?", models.AccessRequestPending)
	}

	var requests []models.AccessRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("access request service: list: %w", err)
	}
	return requests, nil
}

// Get loads one access request by ID.
func (s *AccessRequestService) Get(ctx context.Context, id string) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	var request models.AccessRequest
	err := s.db.WithContext(ctx).First(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("access request %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("access request service: get: %w", err)
	}
	return &request, nil
}

func normalisePermissions(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var result []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
