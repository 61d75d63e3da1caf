package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/database/testutil"
	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/services"
)

var testNow = time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

func TestCleanupExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	expired := models.CacheEntry{Key: "stale", Value: []byte("x"), ExpiresAt: testNow.Add(-time.Hour)}
	active := models.CacheEntry{Key: "fresh", Value: []byte("y"), ExpiresAt: testNow.Add(time.Hour)}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&active).Error)

	user := models.User{Username: "alice"}
	require.NoError(t, db.Create(&user).Error)

	orphan := models.AtomicGrant{Permission: "case.view", ObjectType: models.ObjectTypeCase, ObjectURL: "https://zaken.local/cases/1"}
	attached := models.AtomicGrant{Permission: "case.view", ObjectType: models.ObjectTypeCase, ObjectURL: "https://zaken.local/cases/2"}
	require.NoError(t, db.Create(&orphan).Error)
	require.NoError(t, db.Create(&attached).Error)
	require.NoError(t, db.Create(&models.UserAtomicGrant{
		UserID:        user.ID,
		AtomicGrantID: attached.ID,
		StartDate:     testNow,
		Reason:        models.ReasonAccessGranted,
	}).Error)

	stats, err := CleanupExpired(context.Background(), db, testNow)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.CacheEntries)
	require.EqualValues(t, 1, stats.AtomicGrants)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.EqualValues(t, 1, cacheCount)

	var remaining models.AtomicGrant
	require.NoError(t, db.First(&remaining).Error)
	require.Equal(t, attached.ID, remaining.ID)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "stale",
		Value:     []byte("x"),
		ExpiresAt: testNow.Add(-time.Minute),
	}).Error)

	cleaner := NewCleaner(db, audit, WithNow(func() time.Time { return testNow }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(db, audit, WithCron(scheduler))
	require.NoError(t, cleaner.Start())
	require.Len(t, scheduler.Entries(), 2)
	<-cleaner.Stop().Done()
}

func TestCleanupExpiredNilDB(t *testing.T) {
	_, err := CleanupExpired(context.Background(), (*gorm.DB)(nil), testNow)
	require.Error(t, err)
}
