package database

import (
	"fmt"

	"github.com/syndromed/backend/internal/config"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedAdmin(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Admin{},
		&models.Doctor{},
		&models.NormalUser{},
		&models.Case{},
		&models.SyndromeDetection{},
		&models.Article{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	); err != nil {
		return err
	}

	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'detection_subject_check'
  ) THEN
    ALTER TABLE syndrome_detections
    ADD CONSTRAINT detection_subject_check
    CHECK (
      (case_id IS NOT NULL AND normal_user_id IS NULL)
      OR
      (case_id IS NULL AND normal_user_id IS NOT NULL)
    );
  END IF;
END $$;`

	return db.Exec(constraint).Error
}

func seedAdmin(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Admin{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.Admin{
		Name:         "System Admin",
		Email:        "admin@syndromed.local",
		PasswordHash: hash,
	}

	return db.Create(&admin).Error
}
