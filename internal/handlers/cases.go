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

type CasesHandler struct {
	DB      *gorm.DB
	Storage storage.BlobStore
	Audit   *services.AuditService
}

func NewCasesHandler(db *gorm.DB, blobStore storage.BlobStore, audit *services.AuditService) *CasesHandler {
	return &CasesHandler{DB: db, Storage: blobStore, Audit: audit}
}

type createCaseRequest struct {
	Description        string `json:"description"`
	PatientName        string `json:"patientName"`
	PatientAge         int    `json:"patientAge"`
	PatientGender      string `json:"patientGender"`
	PatientNationality string `json:"patientNationality"`
}

func (h *CasesHandler) Create(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Description) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "description is required")
	}

	entry := models.Case{
		DoctorID:           doctor.ID,
		Description:        strings.TrimSpace(req.Description),
		PatientName:        strings.TrimSpace(req.PatientName),
		PatientAge:         req.PatientAge,
		PatientGender:      strings.TrimSpace(req.PatientGender),
		PatientNationality: strings.TrimSpace(req.PatientNationality),
	}
	if err := h.DB.Create(&entry).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating case")
	}

	kind, actorID := actorRef(doctor)
	caseID := entry.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "case.create",
		ResourceType: "case",
		ResourceID:   &caseID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

// List returns the caller's own cases. A doctor with no cases gets an empty
// list, not a 404.
func (h *CasesHandler) List(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	cases := make([]models.Case, 0)
	if err := h.DB.Where("doctor_id = ?", doctor.ID).Order("created_at DESC").Find(&cases).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing cases")
	}

	return utils.Success(c, fiber.StatusOK, cases)
}

func (h *CasesHandler) Get(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	caseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid case id")
	}

	var entry models.Case
	if err := h.DB.First(&entry, "id = ?", caseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "case not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading case")
	}

	if entry.DoctorID != doctor.ID {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	return utils.Success(c, fiber.StatusOK, entry)
}

// Delete removes a case and all of its detections in one transaction, then
// requests deletion of the detection images from the blob store. Blob
// failures are recorded for reconciliation but never block the delete.
func (h *CasesHandler) Delete(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	caseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid case id")
	}

	var entry models.Case
	if err := h.DB.First(&entry, "id = ?", caseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "case not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading case")
	}

	if entry.DoctorID != doctor.ID {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var detections []models.SyndromeDetection
	if err := h.DB.Select("id", "image_path").Where("case_id = ?", entry.ID).Find(&detections).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading case detections")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("case_id = ?", entry.ID).Delete(&models.SyndromeDetection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Case{}, "id = ?", entry.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting case")
	}

	kind, actorID := actorRef(doctor)
	for _, detection := range detections {
		if detection.ImagePath == "" {
			continue
		}
		if delErr := h.Storage.Delete(c.Context(), detection.ImagePath); delErr != nil {
			detectionID := detection.ID
			h.Audit.LogAsync(services.AuditEntry{
				ActorKind:    kind,
				ActorID:      actorID,
				Action:       "blob.delete_failed",
				ResourceType: "detection",
				ResourceID:   &detectionID,
				Details:      map[string]interface{}{"object_name": detection.ImagePath},
				IPAddress:    c.IP(),
				RequestID:    getRequestID(c),
			})
		}
	}

	logger.InfoWithActor(string(doctor.Kind), "case_deleted", map[string]interface{}{
		"case_id":    entry.ID,
		"detections": len(detections),
	})

	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "case.delete",
		ResourceType: "case",
		ResourceID:   &caseID,
		Details:      map[string]interface{}{"detections_removed": len(detections)},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "case deleted"})
}
