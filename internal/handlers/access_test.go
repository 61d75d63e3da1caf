package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/confidentiality"
	"github.com/vngrid/caseguard/internal/database/testutil"
	"github.com/vngrid/caseguard/internal/engine"
	"github.com/vngrid/caseguard/internal/middleware"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/permissions"
	"github.com/vngrid/caseguard/internal/services"
	"github.com/vngrid/caseguard/internal/zaken"
)

type fakeResolver struct {
	objects map[string]*zaken.ObjectMeta
}

func (f *fakeResolver) ResolveObject(_ context.Context, objectURL string) (*zaken.ObjectMeta, error) {
	meta, ok := f.objects[objectURL]
	if !ok {
		return nil, zaken.ErrObjectNotFound
	}
	return meta, nil
}

func (f *fakeResolver) CaseTypes(context.Context, string) ([]zaken.CaseType, error) {
	return nil, nil
}

const testCaseURL = "https://zaken.local/cases/1"

var testTime = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type handlerEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t)
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		testCaseURL: {
			URL:             testCaseURL,
			TypeIdentifier:  "T1",
			Catalog:         "cat-a",
			Confidentiality: "internal",
		},
	}}

	clock := func() time.Time { return testTime }
	eng, err := engine.New(db, resolver, confidentiality.MustDefault(), engine.WithClock(clock))
	require.NoError(t, err)
	requests, err := services.NewAccessRequestService(db, eng, nil, services.WithRequestClock(clock))
	require.NoError(t, err)
	grants, err := services.NewGrantService(db, services.WithGrantClock(clock))
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	handler := NewAccessHandler(eng, requests, grants, audit)

	router := gin.New()
	authed := router.Group("/api")
	authed.Use(middleware.RemoteUser(db))
	authed.GET("/access/check", handler.CheckAccess)
	authed.GET("/access/objects", handler.AccessibleObjects)
	authed.POST("/access-requests", handler.CreateAccessRequest)
	authed.GET("/access-requests", handler.ListAccessRequests)
	authed.POST("/access-requests/:id/handle", handler.HandleAccessRequest)
	authed.POST("/grants", handler.CreateGrant)

	return &handlerEnv{db: db, router: router}
}

func (e *handlerEnv) createUser(t *testing.T, username string, superuser bool) *models.User {
	t.Helper()

	user := &models.User{Username: username, Email: username + "@example.com", IsSuperuser: superuser}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *handlerEnv) do(t *testing.T, username, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set(middleware.HeaderRemoteUser, username)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestCheckAccessEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	env.createUser(t, "alice", false)

	w := env.do(t, "alice", http.MethodGet,
		"/api/access/check?object_url="+testCaseURL+"&permission=case.view", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, false, data["allowed"])

	w = env.do(t, "alice", http.MethodGet, "/api/access/check?permission=case.view", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "", http.MethodGet,
		"/api/access/check?object_url="+testCaseURL+"&permission=case.view", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckAccessUnresolvableObject(t *testing.T) {
	env := newHandlerEnv(t)
	env.createUser(t, "alice", false)

	w := env.do(t, "alice", http.MethodGet,
		"/api/access/check?object_url=https://zaken.local/cases/404&permission=case.view", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccessRequestFlowOverHTTP(t *testing.T) {
	env := newHandlerEnv(t)
	env.createUser(t, "alice", false)
	env.createUser(t, "root", true)

	// Alice files a request.
	w := env.do(t, "alice", http.MethodPost, "/api/access-requests", gin.H{
		"object_url": testCaseURL,
		"comment":    "need it for case work",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	requestID := decodeData(t, w)["id"].(string)

	// Duplicates are rejected.
	w = env.do(t, "alice", http.MethodPost, "/api/access-requests", gin.H{
		"object_url": testCaseURL,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Another user cannot decide it.
	env.createUser(t, "mallory", false)
	w = env.do(t, "mallory", http.MethodPost,
		fmt.Sprintf("/api/access-requests/%s/handle", requestID), gin.H{
			"result":      "approved",
			"permissions": []string{permissions.CaseView},
		})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The superuser approves it.
	w = env.do(t, "root", http.MethodPost,
		fmt.Sprintf("/api/access-requests/%s/handle", requestID), gin.H{
			"result":          "approved",
			"handler_comment": "fine",
			"permissions":     []string{permissions.CaseView},
			"end_date":        "2024-06-15",
		})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", decodeData(t, w)["result"])

	// Handling twice conflicts.
	w = env.do(t, "root", http.MethodPost,
		fmt.Sprintf("/api/access-requests/%s/handle", requestID), gin.H{
			"result":      "approved",
			"permissions": []string{permissions.CaseView},
		})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Alice can now view the case.
	w = env.do(t, "alice", http.MethodGet,
		"/api/access/check?object_url="+testCaseURL+"&permission=case.view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["allowed"])
}

func TestListAccessRequestsScopedToRequester(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice", false)
	bob := env.createUser(t, "bob", false)

	for _, user := range []*models.User{alice, bob} {
		require.NoError(t, env.db.Create(&models.AccessRequest{
			RequesterID:   user.ID,
			ObjectURL:     testCaseURL,
			RequestedDate: models.DateOf(testTime),
		}).Error)
	}

	w := env.do(t, "alice", http.MethodGet, "/api/access-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.AccessRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, alice.ID, envelope.Data[0].RequesterID)
}

func TestCreateGrantEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice", false)
	env.createUser(t, "root", true)

	w := env.do(t, "root", http.MethodPost, "/api/grants", gin.H{
		"user_id":    alice.ID,
		"permission": permissions.CaseView,
		"object_url": testCaseURL,
		"end_date":   "2024-06-15",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Regular users without the handling permission cannot grant.
	env.createUser(t, "bob", false)
	w = env.do(t, "bob", http.MethodPost, "/api/grants", gin.H{
		"user_id":    alice.ID,
		"permission": permissions.CaseView,
		"object_url": testCaseURL,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
