package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/syndromed/backend/internal/middleware"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/internal/services"
	"github.com/syndromed/backend/internal/storage"
	"github.com/syndromed/backend/pkg/logger"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/gorm"
)

type AccountsHandler struct {
	DB      *gorm.DB
	Storage storage.BlobStore
	Audit   *services.AuditService
}

func NewAccountsHandler(db *gorm.DB, blobStore storage.BlobStore, audit *services.AuditService) *AccountsHandler {
	return &AccountsHandler{DB: db, Storage: blobStore, Audit: audit}
}

// Delete removes a doctor or normal user account. A doctor takes their cases
// and all detections under those cases with them; a user takes their
// self-submitted detections. Rows go in one transaction; blob cleanup is
// best-effort afterwards.
func (h *AccountsHandler) Delete(c *fiber.Ctx) error {
	admin := middleware.GetCurrentPrincipal(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	kindTag := strings.ToLower(strings.TrimSpace(c.Params("kind")))
	accountID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	switch kindTag {
	case "doctor":
		return h.deleteDoctor(c, admin, accountID)
	case "user":
		return h.deleteUser(c, admin, accountID)
	default:
		return utils.Error(c, fiber.StatusBadRequest, "kind must be \"user\" or \"doctor\"")
	}
}

func (h *AccountsHandler) deleteDoctor(c *fiber.Ctx, admin *models.Principal, doctorID uint) error {
	var doctor models.Doctor
	if err := h.DB.First(&doctor, "id = ?", doctorID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	var caseIDs []uint
	if err := h.DB.Model(&models.Case{}).Where("doctor_id = ?", doctor.ID).Pluck("id", &caseIDs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading cases")
	}

	var detections []models.SyndromeDetection
	if len(caseIDs) > 0 {
		if err := h.DB.Select("id", "image_path").Where("case_id IN ?", caseIDs).Find(&detections).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading detections")
		}
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if len(caseIDs) > 0 {
			if err := tx.Where("case_id IN ?", caseIDs).Delete(&models.SyndromeDetection{}).Error; err != nil {
				return err
			}
			if err := tx.Where("doctor_id = ?", doctor.ID).Delete(&models.Case{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Doctor{}, "id = ?", doctor.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting account")
	}

	blobs := make([]string, 0, len(detections)+1)
	for _, detection := range detections {
		if detection.ImagePath != "" {
			blobs = append(blobs, detection.ImagePath)
		}
	}
	if doctor.ImagePath != "" {
		blobs = append(blobs, doctor.ImagePath)
	}
	h.cleanupBlobs(c, admin, "doctor", doctorID, blobs)

	logger.Info("doctor_deleted", map[string]interface{}{
		"doctor_id": doctor.ID,
		"cases":     len(caseIDs),
	})

	kind, actorID := actorRef(admin)
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "account.delete",
		ResourceType: "doctor",
		ResourceID:   &doctorID,
		Details: map[string]interface{}{
			"cases_removed":      len(caseIDs),
			"detections_removed": len(detections),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}

func (h *AccountsHandler) deleteUser(c *fiber.Ctx, admin *models.Principal, userID uint) error {
	var user models.NormalUser
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	var detections []models.SyndromeDetection
	if err := h.DB.Select("id", "image_path").Where("normal_user_id = ?", user.ID).Find(&detections).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading detections")
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("normal_user_id = ?", user.ID).Delete(&models.SyndromeDetection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.NormalUser{}, "id = ?", user.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting account")
	}

	blobs := make([]string, 0, len(detections)+1)
	for _, detection := range detections {
		if detection.ImagePath != "" {
			blobs = append(blobs, detection.ImagePath)
		}
	}
	if user.ImagePath != "" {
		blobs = append(blobs, user.ImagePath)
	}
	h.cleanupBlobs(c, admin, "normal_user", userID, blobs)

	logger.Info("user_deleted", map[string]interface{}{
		"user_id":    user.ID,
		"detections": len(detections),
	})

	kind, actorID := actorRef(admin)
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "account.delete",
		ResourceType: "normal_user",
		ResourceID:   &userID,
		Details: map[string]interface{}{
			"detections_removed": len(detections),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}

func (h *AccountsHandler) cleanupBlobs(c *fiber.Ctx, admin *models.Principal, resourceType string, resourceID uint, objectNames []string) {
	kind, actorID := actorRef(admin)
	for _, objectName := range objectNames {
		if err := h.Storage.Delete(c.Context(), objectName); err != nil {
			h.Audit.LogAsync(services.AuditEntry{
				ActorKind:    kind,
				ActorID:      actorID,
				Action:       "blob.delete_failed",
				ResourceType: resourceType,
				ResourceID:   &resourceID,
				Details:      map[string]interface{}{"object_name": objectName},
				IPAddress:    c.IP(),
				RequestID:    getRequestID(c),
			})
		}
	}
}
