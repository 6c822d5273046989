package handlers

import (
	"mime/multipart"
	"net/mail"
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

type AuthHandler struct {
	DB       *gorm.DB
	Storage  storage.BlobStore
	Identity *services.IdentityService
	Audit    *services.AuditService
}

func NewAuthHandler(db *gorm.DB, blobStore storage.BlobStore, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{
		DB:       db,
		Storage:  blobStore,
		Identity: services.NewIdentityService(db),
		Audit:    audit,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates against all three principal tables through the identity
// resolver. The response never reveals whether the email existed or the
// password was wrong.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	principal, err := h.Identity.Authenticate(req.Email, req.Password)
	if err != nil {
		if err == services.ErrNoMatch {
			logger.Warn("login_failed", map[string]interface{}{
				"email": req.Email,
				"ip":    c.IP(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving credentials")
	}

	token, err := utils.GenerateToken(principal.Kind, principal.ID, principal.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("login_success", map[string]interface{}{
		"kind":         string(principal.Kind),
		"principal_id": principal.ID,
		"ip":           c.IP(),
	})

	kind, actorID := actorRef(principal)
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "auth.login",
		ResourceType: string(principal.Kind),
		ResourceID:   actorID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"kind":  principal.Kind,
		"id":    principal.ID,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal := middleware.GetCurrentPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, principal)
}

type registerAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) RegisterAdmin(c *fiber.Ctx) error {
	var req registerAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing models.Admin
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusBadRequest, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing account")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	admin := models.Admin{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.DB.Create(&admin).Error; err != nil {
		if isDuplicateKeyError(err) {
			return utils.Error(c, fiber.StatusBadRequest, "email already registered")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	logger.Info("admin_registered", map[string]interface{}{
		"admin_id": admin.ID,
		"email":    admin.Email,
	})

	adminID := admin.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    models.KindAdmin,
		ActorID:      &adminID,
		Action:       "admin.register",
		ResourceType: "admin",
		ResourceID:   &adminID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, admin)
}

type registrationForm struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Image    *multipart.FileHeader
}

func parseRegistrationForm(c *fiber.Ctx) (*registrationForm, string) {
	form := &registrationForm{
		Name:     strings.TrimSpace(c.FormValue("name")),
		Email:    strings.ToLower(strings.TrimSpace(c.FormValue("email"))),
		Password: c.FormValue("password"),
		Phone:    strings.TrimSpace(c.FormValue("phone")),
	}

	if form.Name == "" {
		return nil, "name is required"
	}
	if _, err := mail.ParseAddress(form.Email); err != nil {
		return nil, "invalid email"
	}
	if len(form.Password) < 8 {
		return nil, "password must be at least 8 characters"
	}
	if form.Phone == "" {
		return nil, "phone is required"
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, "profile image is required"
	}
	if !services.IsAllowedImage(fileHeader.Filename) {
		return nil, "image must be a .jpg, .jpeg or .png file"
	}
	form.Image = fileHeader

	return form, ""
}

func (h *AuthHandler) RegisterDoctor(c *fiber.Ctx) error {
	form, problem := parseRegistrationForm(c)
	if problem != "" {
		return utils.Error(c, fiber.StatusBadRequest, problem)
	}

	var existing models.Doctor
	if err := h.DB.First(&existing, "email = ?", form.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusBadRequest, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing account")
	}

	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	imagePath, imageURL, err := storeImage(c, h.Storage, form.Image, "avatars/doctor")
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing profile image")
	}

	doctor := models.Doctor{
		Name:         form.Name,
		Email:        form.Email,
		PasswordHash: hash,
		Phone:        form.Phone,
		ImagePath:    imagePath,
		ImageURL:     imageURL,
	}
	if err := h.DB.Create(&doctor).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), imagePath)
		if isDuplicateKeyError(err) {
			return utils.Error(c, fiber.StatusBadRequest, "email already registered")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	logger.Info("doctor_registered", map[string]interface{}{
		"doctor_id": doctor.ID,
		"email":     doctor.Email,
	})

	doctorID := doctor.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    models.KindDoctor,
		ActorID:      &doctorID,
		Action:       "doctor.register",
		ResourceType: "doctor",
		ResourceID:   &doctorID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, doctor)
}

func (h *AuthHandler) RegisterUser(c *fiber.Ctx) error {
	form, problem := parseRegistrationForm(c)
	if problem != "" {
		return utils.Error(c, fiber.StatusBadRequest, problem)
	}

	var existing models.NormalUser
	if err := h.DB.First(&existing, "email = ?", form.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusBadRequest, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing account")
	}

	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	imagePath, imageURL, err := storeImage(c, h.Storage, form.Image, "avatars/user")
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing profile image")
	}

	user := models.NormalUser{
		Name:         form.Name,
		Email:        form.Email,
		PasswordHash: hash,
		Phone:        form.Phone,
		ImagePath:    imagePath,
		ImageURL:     imageURL,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), imagePath)
		if isDuplicateKeyError(err) {
			return utils.Error(c, fiber.StatusBadRequest, "email already registered")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})

	userID := user.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    models.KindNormalUser,
		ActorID:      &userID,
		Action:       "user.register",
		ResourceType: "normal_user",
		ResourceID:   &userID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, user)
}
