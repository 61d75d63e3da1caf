// Package engine implements the access decision core: one boolean decision
// per (user, object, permission), combining blueprint grants, atomic grants,
// and temporary access from approved access requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/confidentiality"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/permissions"
	"github.com/vngrid/caseguard/internal/policy"
	"github.com/vngrid/caseguard/internal/zaken"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/metrics"
)

// Engine evaluates access decisions. It holds no mutable state: every
// decision rebuilds the permission index from the user's active records, so
// concurrent calls for different users are independent.
type Engine struct {
	db       *gorm.DB
	resolver zaken.Resolver
	scale    *confidentiality.Scale
	now      func() time.Time
	log      *zap.Logger
}

// Option customises the Engine.
type Option func(*Engine)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs a decision engine.
func New(db *gorm.DB, resolver zaken.Resolver, scale *confidentiality.Scale, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: db is required")
	}
	if resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if scale == nil {
		return nil, errors.New("engine: confidentiality scale is required")
	}

	e := &Engine{
		db:       db,
		resolver: resolver,
		scale:    scale,
		now:      time.Now,
		log:      logger.WithModule("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Can decides whether the user holds the permission on the object. The
// decision is the logical OR of the blueprint path, the atomic-grant path,
// and (for the canonical read permission) the temporary-access path.
//
// When the object cannot be resolved upstream the typed
// apperrors.ErrObjectNotResolvable is returned; callers treat it as
// deny-with-not-found, not as an authorization failure.
func (e *Engine) Can(ctx context.Context, userID, objectURL, permission string) (bool, error) {
	allowed, err := e.decide(ctx, userID, objectURL, permission)
	switch {
	case err != nil:
		metrics.AccessDecisions.WithLabelValues(permission, "error").Inc()
	case allowed:
		metrics.AccessDecisions.WithLabelValues(permission, "allow").Inc()
	default:
		metrics.AccessDecisions.WithLabelValues(permission, "deny").Inc()
	}
	return allowed, err
}

func (e *Engine) decide(ctx context.Context, userID, objectURL, permission string) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("engine: user id is required")
	}
	objectURL = strings.TrimSpace(objectURL)
	if objectURL == "" {
		return false, errors.New("engine: object url is required")
	}

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsSuperuser {
		return true, nil
	}

	// Unknown permission names never match anything.
	if !permissions.Known(permission) {
		return false, nil
	}

	meta, err := e.resolver.ResolveObject(ctx, objectURL)
	if errors.Is(err, zaken.ErrObjectNotFound) {
		return false, apperrors.ErrObjectNotResolvable.WithInternal(err)
	}
	if err != nil {
		return false, fmt.Errorf("engine: resolve object: %w", err)
	}

	today := models.DateOf(e.now())

	blueprint, err := e.blueprintAllows(ctx, userID, permission, meta, today)
	if err != nil {
		return false, err
	}
	if blueprint {
		return true, nil
	}

	atomic, err := e.atomicAllows(ctx, userID, objectURL, permission, today)
	if err != nil {
		return false, err
	}
	if atomic {
		return true, nil
	}

	if permission == permissions.CaseView {
		return e.temporaryAccess(ctx, userID, objectURL, today)
	}
	return false, nil
}

func (e *Engine) blueprintAllows(ctx context.Context, userID, permission string, meta *zaken.ObjectMeta, today time.Time) (bool, error) {
	idx, err := e.buildIndex(ctx, userID, today)
	if err != nil {
		return false, err
	}

	if !idx.Contains(permission, meta.Catalog, meta.TypeIdentifier, meta.Confidentiality) {
		return false, nil
	}

	units, unrestricted := idx.OrgUnits(permission, meta.Catalog, meta.TypeIdentifier, meta.Confidentiality)
	if unrestricted {
		return true, nil
	}

	for _, assigned := range meta.OrgUnits {
		if _, ok := units[assigned]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) atomicAllows(ctx context.Context, userID, objectURL, permission string, today time.Time) (bool, error) {
	var rows []models.UserAtomicGrant
	err := e.db.WithContext(ctx).
		Joins("JOIN atomic_grants ON atomic_grants.id = user_atomic_grants.atomic_grant_id").
		Where("user_atomic_grants.user_id = ?", userID).
		Where("atomic_grants.permission = ?", permission).
		Where("atomic_grants.object_url = ?", objectURL).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("engine: load atomic grants: %w", err)
	}

	for i := range rows {
		if rows[i].ActiveAt(today) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) temporaryAccess(ctx context.Context, userID, objectURL string, today time.Time) (bool, error) {
	var requests []models.AccessRequest
	err := e.db.WithContext(ctx).
		Where("requester_id = ?", userID).
		Where("object_url = ?", objectURL).
		Where("result = ?", models.AccessRequestApproved).
		Find(&requests).Error
	if err != nil {
		return false, fmt.Errorf("engine: load access requests: %w", err)
	}

	for i := range requests {
		if requests[i].GrantsValidAt(today) {
			return true, nil
		}
	}
	return false, nil
}

// AccessibleObjectURLs returns the object URLs the user can reach through
// enumerable grants: active atomic grants for the permission, plus (for the
// canonical read permission) approved valid access requests. Blueprint scopes
// match objects structurally and are exposed through AccessibleCaseTypeURLs
// instead.
func (e *Engine) AccessibleObjectURLs(ctx context.Context, userID, permission string) ([]string, error) {
	ctx = ensureContext(ctx)
	today := models.DateOf(e.now())

	var rows []models.UserAtomicGrant
	err := e.db.WithContext(ctx).
		Preload("AtomicGrant").
		Joins("JOIN atomic_grants ON atomic_grants.id = user_atomic_grants.atomic_grant_id").
		Where("user_atomic_grants.user_id = ?", userID).
		Where("atomic_grants.permission = ?", permission).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("engine: enumerate atomic grants: %w", err)
	}

	seen := make(map[string]struct{})
	for i := range rows {
		if rows[i].ActiveAt(today) {
			seen[rows[i].AtomicGrant.ObjectURL] = struct{}{}
		}
	}

	if permission == permissions.CaseView {
		var requests []models.AccessRequest
		err := e.db.WithContext(ctx).
			Where("requester_id = ?", userID).
			Where("result = ?", models.AccessRequestApproved).
			Find(&requests).Error
		if err != nil {
			return nil, fmt.Errorf("engine: enumerate access requests: %w", err)
		}
		for i := range requests {
			if requests[i].GrantsValidAt(today) {
				seen[requests[i].ObjectURL] = struct{}{}
			}
		}
	}

	urls := make([]string, 0, len(seen))
	for url := range seen {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

// AccessibleCaseTypeURLs resolves the case-type URLs matched by the user's
// blueprint scopes for the permission. Scopes without a catalog cannot be
// enumerated and are skipped.
func (e *Engine) AccessibleCaseTypeURLs(ctx context.Context, userID, permission string) ([]string, error) {
	ctx = ensureContext(ctx)
	today := models.DateOf(e.now())

	idx, err := e.buildIndex(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	byCatalog := make(map[string][]policy.Filter)
	for _, filter := range idx.CaseTypeFilters(permission) {
		if filter.Catalog == "" {
			continue
		}
		byCatalog[filter.Catalog] = append(byCatalog[filter.Catalog], filter)
	}

	for catalog, filters := range byCatalog {
		types, err := e.resolver.CaseTypes(ctx, catalog)
		if err != nil {
			return nil, fmt.Errorf("engine: list case types: %w", err)
		}
		for _, caseType := range types {
			for _, filter := range filters {
				if filter.TypeIdentifier == "" || filter.TypeIdentifier == caseType.Identifier {
					seen[caseType.URL] = struct{}{}
					break
				}
			}
		}
	}

	urls := make([]string, 0, len(seen))
	for url := range seen {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

type policyRow struct {
	Permission         string
	ObjectType         string
	Catalog            string
	TypeIdentifier     string
	MaxConfidentiality string
	OrgUnit            *string
}

func (e *Engine) buildIndex(ctx context.Context, userID string, today time.Time) (*policy.Index, error) {
	var rows []policyRow
	err := e.db.WithContext(ctx).
		Table("policy_records").
		Select("policy_records.permission, policy_records.object_type, policy_records.catalog, policy_records.type_identifier, policy_records.max_confidentiality, authorization_profiles.org_unit_slug AS org_unit").
		Joins("JOIN profile_policy_records ON profile_policy_records.policy_record_id = policy_records.id").
		Joins("JOIN authorization_profiles ON authorization_profiles.id = profile_policy_records.authorization_profile_id").
		Joins("JOIN user_authorization_profiles ON user_authorization_profiles.profile_id = authorization_profiles.id").
		Where("user_authorization_profiles.user_id = ?", userID).
		Where("user_authorization_profiles.start_date <= ?", today).
		Where("(user_authorization_profiles.end_date IS NULL OR user_authorization_profiles.end_date >= ?)", today).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("engine: load policy records: %w", err)
	}

	records := make([]policy.ScopedRecord, len(rows))
	for i, row := range rows {
		records[i] = policy.ScopedRecord{
			Permission:         row.Permission,
			ObjectType:         row.ObjectType,
			Catalog:            row.Catalog,
			TypeIdentifier:     row.TypeIdentifier,
			MaxConfidentiality: row.MaxConfidentiality,
			OrgUnit:            row.OrgUnit,
		}
	}
	return policy.NewIndex(e.scale, records), nil
}

func (e *Engine) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := e.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("engine: user %s not found", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load user: %w", err)
	}
	return &user, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
