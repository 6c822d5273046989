package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/syndromed/backend/internal/middleware"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/internal/services"
	"github.com/syndromed/backend/internal/storage"
	"github.com/syndromed/backend/pkg/logger"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/gorm"
)

type DetectionsHandler struct {
	DB      *gorm.DB
	Storage storage.BlobStore
	Audit   *services.AuditService
}

func NewDetectionsHandler(db *gorm.DB, blobStore storage.BlobStore, audit *services.AuditService) *DetectionsHandler {
	return &DetectionsHandler{DB: db, Storage: blobStore, Audit: audit}
}

// CreateForCase records a doctor-authored detection linked to one of the
// caller's cases. The validator runs before any write; the image goes to the
// blob store before the row is inserted, and the blob is removed again if the
// insert fails.
func (h *DetectionsHandler) CreateForCase(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	caseIDRaw := strings.TrimSpace(c.FormValue("caseID"))
	parsed, err := strconv.ParseUint(caseIDRaw, 10, 32)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid caseID")
	}
	caseID := uint(parsed)

	input := services.DetectionInput{
		CaseID:      &caseID,
		Description: c.FormValue("description"),
	}
	fileHeader, fileErr := c.FormFile("image")
	if fileErr == nil {
		input.ImageFilename = fileHeader.Filename
	}

	if verr := services.ValidateDetection(input); verr != nil {
		return utils.Error(c, fiber.StatusBadRequest, verr.Error())
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

	imagePath, imageURL, err := storeImage(c, h.Storage, fileHeader, "detections/case")
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing detection image")
	}

	detection := models.SyndromeDetection{
		Result:      strings.TrimSpace(c.FormValue("result")),
		ImagePath:   imagePath,
		ImageURL:    imageURL,
		DetectedAt:  time.Now().UTC(),
		CaseID:      &caseID,
		Description: strings.TrimSpace(input.Description),
	}
	if err := h.DB.Create(&detection).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), imagePath)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating detection")
	}

	kind, actorID := actorRef(doctor)
	detectionID := detection.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "detection.create",
		ResourceType: "detection",
		ResourceID:   &detectionID,
		Details:      map[string]interface{}{"case_id": caseID},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, detection)
}

// CreateForSelf records a self-submitted detection for the calling user. The
// demographic fields become mandatory on this branch.
func (h *DetectionsHandler) CreateForSelf(c *fiber.Ctx) error {
	user := middleware.GetCurrentPrincipal(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	age, _ := strconv.Atoi(strings.TrimSpace(c.FormValue("age")))
	userID := user.ID

	input := services.DetectionInput{
		NormalUserID: &userID,
		Description:  c.FormValue("description"),
		Name:         c.FormValue("name"),
		Age:          age,
		Gender:       c.FormValue("gender"),
		Nationality:  c.FormValue("nationality"),
	}
	fileHeader, fileErr := c.FormFile("image")
	if fileErr == nil {
		input.ImageFilename = fileHeader.Filename
	}

	if verr := services.ValidateDetection(input); verr != nil {
		return utils.Error(c, fiber.StatusBadRequest, verr.Error())
	}

	imagePath, imageURL, err := storeImage(c, h.Storage, fileHeader, "detections/self")
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing detection image")
	}

	detection := models.SyndromeDetection{
		Result:       strings.TrimSpace(c.FormValue("result")),
		ImagePath:    imagePath,
		ImageURL:     imageURL,
		DetectedAt:   time.Now().UTC(),
		NormalUserID: &userID,
		Description:  strings.TrimSpace(input.Description),
		Name:         strings.TrimSpace(input.Name),
		Age:          input.Age,
		Gender:       strings.TrimSpace(input.Gender),
		Nationality:  strings.TrimSpace(input.Nationality),
	}
	if err := h.DB.Create(&detection).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), imagePath)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating detection")
	}

	kind, actorID := actorRef(user)
	detectionID := detection.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "detection.create",
		ResourceType: "detection",
		ResourceID:   &detectionID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, detection)
}

func (h *DetectionsHandler) ListByCase(c *fiber.Ctx) error {
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

	detections := make([]models.SyndromeDetection, 0)
	if err := h.DB.Where("case_id = ?", entry.ID).Order("detected_at DESC").Find(&detections).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing detections")
	}

	return utils.Success(c, fiber.StatusOK, detections)
}

// DoctorHistory lists every detection across all of the caller's cases,
// newest first.
func (h *DetectionsHandler) DoctorHistory(c *fiber.Ctx) error {
	doctor := middleware.GetCurrentPrincipal(c)
	if doctor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	detections := make([]models.SyndromeDetection, 0)
	if err := h.DB.
		Joins("JOIN cases ON cases.id = syndrome_detections.case_id").
		Where("cases.doctor_id = ?", doctor.ID).
		Order("syndrome_detections.detected_at DESC").
		Find(&detections).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing detections")
	}

	return utils.Success(c, fiber.StatusOK, detections)
}

func (h *DetectionsHandler) ListMine(c *fiber.Ctx) error {
	user := middleware.GetCurrentPrincipal(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	detections := make([]models.SyndromeDetection, 0)
	if err := h.DB.Where("normal_user_id = ?", user.ID).Order("detected_at DESC").Find(&detections).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing detections")
	}

	return utils.Success(c, fiber.StatusOK, detections)
}

// Delete removes one detection. Allowed for an admin, the doctor owning the
// linked case, or the user who self-submitted it. The stored image is removed
// best-effort after the row.
func (h *DetectionsHandler) Delete(c *fiber.Ctx) error {
	principal := middleware.GetCurrentPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	detectionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid detection id")
	}

	var detection models.SyndromeDetection
	if err := h.DB.First(&detection, "id = ?", detectionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "detection not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading detection")
	}

	allowed := false
	switch principal.Kind {
	case models.KindAdmin:
		allowed = true
	case models.KindDoctor:
		if detection.CaseID != nil {
			var entry models.Case
			if err := h.DB.Select("id", "doctor_id").First(&entry, "id = ?", *detection.CaseID).Error; err == nil {
				allowed = entry.DoctorID == principal.ID
			}
		}
	case models.KindNormalUser:
		allowed = detection.NormalUserID != nil && *detection.NormalUserID == principal.ID
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	if err := h.DB.Delete(&models.SyndromeDetection{}, "id = ?", detection.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting detection")
	}

	kind, actorID := actorRef(principal)
	if detection.ImagePath != "" {
		if delErr := h.Storage.Delete(c.Context(), detection.ImagePath); delErr != nil {
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

	logger.Info("detection_deleted", map[string]interface{}{
		"detection_id": detection.ID,
	})

	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "detection.delete",
		ResourceType: "detection",
		ResourceID:   &detectionID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "detection deleted"})
}
