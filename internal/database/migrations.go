package database

import (
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.OrgUnit{},
		&models.AuthorizationProfile{},
		&models.UserAuthorizationProfile{},
		&models.PolicyRecord{},
		&models.AtomicGrant{},
		&models.UserAtomicGrant{},
		&models.AccessRequest{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData ensures an initial superuser exists. Regular accounts are
// provisioned on first sight by the reverse-proxy middleware.
func SeedData(db *gorm.DB) error {
	admin := models.User{
		Username:    "admin",
		IsSuperuser: true,
		IsActive:    true,
	}
	return db.Where(models.User{Username: admin.Username}).Attrs(admin).FirstOrCreate(&models.User{}).Error
}
