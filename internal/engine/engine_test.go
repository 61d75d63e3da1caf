package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/confidentiality"
	"github.com/vngrid/caseguard/internal/database/testutil"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/permissions"
	"github.com/vngrid/caseguard/internal/zaken"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
)

type fakeResolver struct {
	objects   map[string]*zaken.ObjectMeta
	caseTypes map[string][]zaken.CaseType
}

func (f *fakeResolver) ResolveObject(_ context.Context, objectURL string) (*zaken.ObjectMeta, error) {
	meta, ok := f.objects[objectURL]
	if !ok {
		return nil, zaken.ErrObjectNotFound
	}
	return meta, nil
}

func (f *fakeResolver) CaseTypes(_ context.Context, catalog string) ([]zaken.CaseType, error) {
	return f.caseTypes[catalog], nil
}

var testTime = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, resolver *fakeResolver) (*Engine, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	eng, err := New(db, resolver, confidentiality.MustDefault(), WithClock(func() time.Time {
		return testTime
	}))
	require.NoError(t, err)
	return eng, db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func grantProfile(t *testing.T, db *gorm.DB, user *models.User, orgUnit *string, records ...*models.PolicyRecord) *models.AuthorizationProfile {
	t.Helper()

	profile := &models.AuthorizationProfile{Name: user.Username + "-" + uuid.NewString(), OrgUnitSlug: orgUnit}
	require.NoError(t, db.Create(profile).Error)
	for _, record := range records {
		require.NoError(t, db.Model(profile).Association("PolicyRecords").Append(record))
	}
	require.NoError(t, db.Create(&models.UserAuthorizationProfile{
		UserID:    user.ID,
		ProfileID: profile.ID,
		StartDate: testTime.AddDate(-1, 0, 0),
	}).Error)
	return profile
}

func caseViewRecord(t *testing.T, db *gorm.DB, catalog, typeIdentifier, maxVA string) *models.PolicyRecord {
	t.Helper()

	record := &models.PolicyRecord{
		Permission:         permissions.CaseView,
		ObjectType:         models.ObjectTypeCase,
		Catalog:            catalog,
		TypeIdentifier:     typeIdentifier,
		MaxConfidentiality: maxVA,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func caseMeta(url, catalog, typeIdentifier, va string, orgUnits ...string) *zaken.ObjectMeta {
	return &zaken.ObjectMeta{
		URL:             url,
		TypeURL:         url + "/type",
		TypeIdentifier:  typeIdentifier,
		Catalog:         catalog,
		Confidentiality: va,
		OrgUnits:        orgUnits,
	}
}

func TestEngineBlueprintDecision(t *testing.T) {
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		"https://zaken.local/cases/1": caseMeta("https://zaken.local/cases/1", "cat-a", "T1", "internal"),
		"https://zaken.local/cases/2": caseMeta("https://zaken.local/cases/2", "cat-a", "T1", "secret"),
		"https://zaken.local/cases/3": caseMeta("https://zaken.local/cases/3", "cat-a", "T2", "internal"),
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")
	record := caseViewRecord(t, db, "cat-a", "T1", "confidential")
	grantProfile(t, db, user, nil, record)

	allowed, err := eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", permissions.CaseView)
	require.NoError(t, err)
	assert.True(t, allowed, "within the confidentiality ceiling")

	allowed, err = eng.Can(context.Background(), user.ID, "https://zaken.local/cases/2", permissions.CaseView)
	require.NoError(t, err)
	assert.False(t, allowed, "above the confidentiality ceiling")

	allowed, err = eng.Can(context.Background(), user.ID, "https://zaken.local/cases/3", permissions.CaseView)
	require.NoError(t, err)
	assert.False(t, allowed, "different case type")

	allowed, err = eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", "case.close")
	require.NoError(t, err)
	assert.False(t, allowed, "permission not granted by any record")
}

func TestEngineUnknownPermissionDenied(t *testing.T) {
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		"https://zaken.local/cases/1": caseMeta("https://zaken.local/cases/1", "cat-a", "T1", "public"),
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")

	allowed, err := eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", "case.fly")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngineSuperuserBypass(t *testing.T) {
	eng, db := newTestEngine(t, &fakeResolver{objects: map[string]*zaken.ObjectMeta{}})

	admin := &models.User{Username: "root", IsSuperuser: true}
	require.NoError(t, db.Create(admin).Error)

	// The short-circuit happens before object resolution.
	allowed, err := eng.Can(context.Background(), admin.ID, "https://zaken.local/cases/missing", permissions.CaseView)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEngineObjectNotResolvable(t *testing.T) {
	eng, db := newTestEngine(t, &fakeResolver{objects: map[string]*zaken.ObjectMeta{}})

	user := createUser(t, db, "alice")

	_, err := eng.Can(context.Background(), user.ID, "https://zaken.local/cases/missing", permissions.CaseView)
	require.ErrorIs(t, err, apperrors.ErrObjectNotResolvable)
}

func TestEngineOrgUnitFiltering(t *testing.T) {
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		"https://zaken.local/cases/1": caseMeta("https://zaken.local/cases/1", "cat-a", "T1", "internal", "unit-beta"),
		"https://zaken.local/cases/2": caseMeta("https://zaken.local/cases/2", "cat-a", "T1", "internal", "unit-alpha"),
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")
	record := caseViewRecord(t, db, "cat-a", "T1", "confidential")
	require.NoError(t, db.Create(&models.OrgUnit{Slug: "unit-alpha", Name: "Alpha"}).Error)
	require.NoError(t, db.Create(&models.OrgUnit{Slug: "unit-beta", Name: "Beta"}).Error)
	alpha := "unit-alpha"
	grantProfile(t, db, user, &alpha, record)

	allowed, err := eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", permissions.CaseView)
	require.NoError(t, err)
	assert.False(t, allowed, "case assigned to another unit")

	allowed, err = eng.Can(context.Background(), user.ID, "https://zaken.local/cases/2", permissions.CaseView)
	require.NoError(t, err)
	assert.True(t, allowed, "case assigned to the profile's unit")

	// A second unrestricted profile widens access rather than narrowing it.
	grantProfile(t, db, user, nil, record)

	allowed, err = eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", permissions.CaseView)
	require.NoError(t, err)
	assert.True(t, allowed, "unrestricted profile lifts the unit filter")
}

func TestEngineExpiredProfileMembership(t *testing.T) {
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		"https://zaken.local/cases/1": caseMeta("https://zaken.local/cases/1", "cat-a", "T1", "public"),
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")
	record := caseViewRecord(t, db, "cat-a", "T1", "confidential")

	profile := &models.AuthorizationProfile{Name: "expired"}
	require.NoError(t, db.Create(profile).Error)
	require.NoError(t, db.Model(profile).Association("PolicyRecords").Append(record))
	ended := models.DateOf(testTime.AddDate(0, 0, -1))
	require.NoError(t, db.Create(&models.UserAuthorizationProfile{
		UserID:    user.ID,
		ProfileID: profile.ID,
		StartDate: testTime.AddDate(-1, 0, 0),
		EndDate:   &ended,
	}).Error)

	allowed, err := eng.Can(context.Background(), user.ID, "https://zaken.local/cases/1", permissions.CaseView)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func createAtomicGrant(t *testing.T, db *gorm.DB, user *models.User, objectURL string, start time.Time, end *time.Time) {
	t.Helper()

	grant := &models.AtomicGrant{
		Permission: permissions.CaseView,
		ObjectType: models.ObjectTypeCase,
		ObjectURL:  objectURL,
	}
	require.NoError(t, db.Create(grant).Error)
	require.NoError(t, db.Create(&models.UserAtomicGrant{
		UserID:        user.ID,
		AtomicGrantID: grant.ID,
		StartDate:     start,
		EndDate:       end,
		Reason:        models.ReasonAccessGranted,
	}).Error)
}

func TestEngineAtomicGrantWindow(t *testing.T) {
	objectURL := "https://zaken.local/cases/1"
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		objectURL: caseMeta(objectURL, "cat-a", "T1", "internal"),
	}}

	today := models.DateOf(testTime)

	tests := []struct {
		name    string
		start   time.Time
		end     *time.Time
		allowed bool
	}{
		{"open ended", today.AddDate(0, 0, -5), nil, true},
		{"ends today", today.AddDate(0, 0, -5), &today, true},
		{"starts today", today, nil, true},
		{"expired yesterday", today.AddDate(0, 0, -5), ptr(today.AddDate(0, 0, -1)), false},
		{"starts tomorrow", today.AddDate(0, 0, 1), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, db := newTestEngine(t, resolver)
			user := createUser(t, db, "alice")
			createAtomicGrant(t, db, user, objectURL, tt.start, tt.end)

			allowed, err := eng.Can(context.Background(), user.ID, objectURL, permissions.CaseView)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestEngineTemporaryAccessViaApprovedRequest(t *testing.T) {
	objectURL := "https://zaken.local/cases/1"
	resolver := &fakeResolver{objects: map[string]*zaken.ObjectMeta{
		objectURL: caseMeta(objectURL, "cat-a", "T1", "internal"),
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")
	today := models.DateOf(testTime)
	require.NoError(t, db.Create(&models.AccessRequest{
		RequesterID:   user.ID,
		ObjectURL:     objectURL,
		Result:        models.AccessRequestApproved,
		RequestedDate: today.AddDate(0, 0, -2),
		StartDate:     &today,
	}).Error)

	allowed, err := eng.Can(context.Background(), user.ID, objectURL, permissions.CaseView)
	require.NoError(t, err)
	assert.True(t, allowed, "approved request grants read access")

	allowed, err = eng.Can(context.Background(), user.ID, objectURL, "case.close")
	require.NoError(t, err)
	assert.False(t, allowed, "temporary access only covers reading")
}

func TestEngineAccessibleObjectURLs(t *testing.T) {
	eng, db := newTestEngine(t, &fakeResolver{})

	user := createUser(t, db, "alice")
	today := models.DateOf(testTime)

	createAtomicGrant(t, db, user, "https://zaken.local/cases/2", today.AddDate(0, 0, -1), nil)
	createAtomicGrant(t, db, user, "https://zaken.local/cases/9", today.AddDate(0, 0, -10), ptr(today.AddDate(0, 0, -1)))
	require.NoError(t, db.Create(&models.AccessRequest{
		RequesterID:   user.ID,
		ObjectURL:     "https://zaken.local/cases/1",
		Result:        models.AccessRequestApproved,
		RequestedDate: today,
		StartDate:     &today,
	}).Error)

	urls, err := eng.AccessibleObjectURLs(context.Background(), user.ID, permissions.CaseView)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://zaken.local/cases/1",
		"https://zaken.local/cases/2",
	}, urls)
}

func TestEngineAccessibleCaseTypeURLs(t *testing.T) {
	resolver := &fakeResolver{caseTypes: map[string][]zaken.CaseType{
		"cat-a": {
			{URL: "https://catalogi.local/types/1", Identifier: "T1", Catalog: "cat-a"},
			{URL: "https://catalogi.local/types/2", Identifier: "T2", Catalog: "cat-a"},
		},
	}}
	eng, db := newTestEngine(t, resolver)

	user := createUser(t, db, "alice")
	record := caseViewRecord(t, db, "cat-a", "T1", "confidential")
	grantProfile(t, db, user, nil, record)

	urls, err := eng.AccessibleCaseTypeURLs(context.Background(), user.ID, permissions.CaseView)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://catalogi.local/types/1"}, urls)

	// A wildcard type identifier matches every type in the catalog.
	wildcard := caseViewRecord(t, db, "cat-a", "", "confidential")
	grantProfile(t, db, user, nil, wildcard)

	urls, err = eng.AccessibleCaseTypeURLs(context.Background(), user.ID, permissions.CaseView)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://catalogi.local/types/1",
		"https://catalogi.local/types/2",
	}, urls)
}

func ptr(t time.Time) *time.Time {
	return &t
}
