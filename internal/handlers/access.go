// Package handlers exposes the access layer over HTTP. The surface is thin:
// every route delegates to the engine or a service and renders the shared
// response envelope.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vngrid/caseguard/internal/engine"
	"github.com/vngrid/caseguard/internal/middleware"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/permissions"
	"github.com/vngrid/caseguard/internal/services"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
	"github.com/vngrid/caseguard/pkg/response"
	"github.com/vngrid/caseguard/pkg/validator"
)

const dateLayout = "2006-01-02"

// AccessHandler serves access checks and the access-request lifecycle.
type AccessHandler struct {
	engine   *engine.Engine
	requests *services.AccessRequestService
	grants   *services.GrantService
	audit    *services.AuditService
}

// NewAccessHandler constructs the handler.
func NewAccessHandler(eng *engine.Engine, requests *services.AccessRequestService, grants *services.GrantService, audit *services.AuditService) *AccessHandler {
	return &AccessHandler{engine: eng, requests: requests, grants: grants, audit: audit}
}

type checkAccessQuery struct {
	ObjectURL  string `form:"object_url" json:"object_url" validate:"required,url"`
	Permission string `form:"permission" json:"permission" validate:"required"`
}

// CheckAccess evaluates one (user, object, permission) decision for the
// authenticated user.
func (h *AccessHandler) CheckAccess(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var query checkAccessQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(query); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	allowed, err := h.engine.Can(c.Request.Context(), user.ID, query.ObjectURL, query.Permission)
	if err != nil {
		response.Error(c, err)
		return
	}

	result := "deny"
	if allowed {
		result = "allow"
	}
	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    services.AuditActionDecision,
		ObjectURL: query.ObjectURL,
		Result:    result,
		Metadata:  map[string]any{"permission": query.Permission},
	})

	response.Success(c, http.StatusOK, gin.H{
		"object_url": query.ObjectURL,
		"permission": query.Permission,
		"allowed":    allowed,
	})
}

// AccessibleObjects lists what the authenticated user can reach for a
// permission: directly granted object URLs plus blueprint-matched case types.
func (h *AccessHandler) AccessibleObjects(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	permission := c.DefaultQuery("permission", permissions.CaseView)
	if !permissions.Known(permission) {
		response.Error(c, apperrors.ErrUnknownPermission)
		return
	}

	objectURLs, err := h.engine.AccessibleObjectURLs(c.Request.Context(), user.ID, permission)
	if err != nil {
		response.Error(c, err)
		return
	}
	caseTypeURLs, err := h.engine.AccessibleCaseTypeURLs(c.Request.Context(), user.ID, permission)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"permission":     permission,
		"object_urls":    objectURLs,
		"case_type_urls": caseTypeURLs,
	})
}

type createAccessRequestBody struct {
	ObjectURL string `json:"object_url" validate:"required,url"`
	Comment   string `json:"comment"`
}

// CreateAccessRequest files a pending request for the authenticated user.
func (h *AccessHandler) CreateAccessRequest(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body createAccessRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	request, err := h.requests.Create(c.Request.Context(), services.CreateAccessRequestInput{
		RequesterID: user.ID,
		ObjectURL:   body.ObjectURL,
		Comment:     body.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    services.AuditActionRequestCreated,
		ObjectURL: request.ObjectURL,
		Result:    "pending",
	})
	response.Success(c, http.StatusCreated, request)
}

// ListAccessRequests returns access requests. Regular users only see their
// own; superusers may filter by requester.
func (h *AccessHandler) ListAccessRequests(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	opts := services.ListAccessRequestsOptions{
		RequesterID: user.ID,
		ObjectURL:   c.Query("object_url"),
		PendingOnly: c.Query("pending") == "true",
	}
	if user.IsSuperuser {
		opts.RequesterID = c.Query("requester_id")
	}

	requests, err := h.requests.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

type handleAccessRequestBody struct {
	Result         string   `json:"result" validate:"required,oneof=approved rejected"`
	HandlerComment string   `json:"handler_comment"`
	Permissions    []string `json:"permissions"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
}

// HandleAccessRequest decides a pending request. The caller must hold the
// access-handling permission on the requested object.
func (h *AccessHandler) HandleAccessRequest(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body handleAccessRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}
	start, err := parseDate(body.StartDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("start_date must be formatted as YYYY-MM-DD"))
		return
	}
	end, err := parseDate(body.EndDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("end_date must be formatted as YYYY-MM-DD"))
		return
	}

	request, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.authorizeHandling(c, user, request.ObjectURL); err != nil {
		response.Error(c, err)
		return
	}

	handled, err := h.requests.Handle(c.Request.Context(), services.HandleAccessRequestInput{
		RequestID:      request.ID,
		HandlerID:      user.ID,
		Result:         body.Result,
		HandlerComment: body.HandlerComment,
		Permissions:    body.Permissions,
		StartDate:      start,
		EndDate:        end,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    services.AuditActionRequestHandled,
		ObjectURL: handled.ObjectURL,
		Result:    handled.Result,
		Metadata:  map[string]any{"request_id": handled.ID},
	})
	response.Success(c, http.StatusOK, handled)
}

type createGrantBody struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	Permission string `json:"permission" validate:"required"`
	ObjectURL  string `json:"object_url" validate:"required,url"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Comment    string `json:"comment"`
}

// CreateGrant attaches an atomic grant to a user directly.
func (h *AccessHandler) CreateGrant(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body createGrantBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}
	start, err := parseDate(body.StartDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("start_date must be formatted as YYYY-MM-DD"))
		return
	}
	end, err := parseDate(body.EndDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("end_date must be formatted as YYYY-MM-DD"))
		return
	}

	if err := h.authorizeHandling(c, user, body.ObjectURL); err != nil {
		response.Error(c, err)
		return
	}

	granted, err := h.grants.Grant(c.Request.Context(), services.GrantInput{
		UserID:     body.UserID,
		Permission: body.Permission,
		ObjectURL:  body.ObjectURL,
		StartDate:  start,
		EndDate:    end,
		Comment:    body.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    services.AuditActionGrantCreated,
		ObjectURL: body.ObjectURL,
		Result:    "granted",
		Metadata: map[string]any{
			"grantee_id": body.UserID,
			"permission": body.Permission,
		},
	})
	response.Success(c, http.StatusCreated, granted)
}

// authorizeHandling checks the caller may decide about access to the object.
func (h *AccessHandler) authorizeHandling(c *gin.Context, user *models.User, objectURL string) error {
	if user.IsSuperuser {
		return nil
	}
	allowed, err := h.engine.Can(c.Request.Context(), user.ID, objectURL, permissions.CaseHandleAccess)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.ErrForbidden
	}
	return nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
