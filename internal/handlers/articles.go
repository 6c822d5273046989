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

type ArticlesHandler struct {
	DB      *gorm.DB
	Storage storage.BlobStore
	Audit   *services.AuditService
}

func NewArticlesHandler(db *gorm.DB, blobStore storage.BlobStore, audit *services.AuditService) *ArticlesHandler {
	return &ArticlesHandler{DB: db, Storage: blobStore, Audit: audit}
}

func (h *ArticlesHandler) List(c *fiber.Ctx) error {
	articles := make([]models.Article, 0)
	if err := h.DB.Order("created_at DESC").Find(&articles).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing articles")
	}
	return utils.Success(c, fiber.StatusOK, articles)
}

func (h *ArticlesHandler) Create(c *fiber.Ctx) error {
	admin := middleware.GetCurrentPrincipal(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	author := strings.TrimSpace(c.FormValue("author"))
	content := strings.TrimSpace(c.FormValue("content"))

	if title == "" || author == "" || content == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title, author and content are required")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "image is required")
	}
	if !services.IsAllowedImage(fileHeader.Filename) {
		return utils.Error(c, fiber.StatusBadRequest, "image must be a .jpg, .jpeg or .png file")
	}

	imagePath, imageURL, err := storeImage(c, h.Storage, fileHeader, "articles")
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing article image")
	}

	article := models.Article{
		Title:     title,
		Author:    author,
		Content:   content,
		ImagePath: imagePath,
		ImageURL:  imageURL,
	}
	if err := h.DB.Create(&article).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), imagePath)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating article")
	}

	kind, actorID := actorRef(admin)
	articleID := article.ID
	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "article.create",
		ResourceType: "article",
		ResourceID:   &articleID,
		Details:      map[string]interface{}{"title": title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, article)
}

// Delete removes the article row, then asks the blob store to release the
// associated image. A blob failure is reported, not propagated.
func (h *ArticlesHandler) Delete(c *fiber.Ctx) error {
	admin := middleware.GetCurrentPrincipal(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	articleID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid article id")
	}

	var article models.Article
	if err := h.DB.First(&article, "id = ?", articleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "article not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading article")
	}

	if err := h.DB.Delete(&models.Article{}, "id = ?", article.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting article")
	}

	kind, actorID := actorRef(admin)
	if article.ImagePath != "" {
		if delErr := h.Storage.Delete(c.Context(), article.ImagePath); delErr != nil {
			h.Audit.LogAsync(services.AuditEntry{
				ActorKind:    kind,
				ActorID:      actorID,
				Action:       "blob.delete_failed",
				ResourceType: "article",
				ResourceID:   &articleID,
				Details:      map[string]interface{}{"object_name": article.ImagePath},
				IPAddress:    c.IP(),
				RequestID:    getRequestID(c),
			})
		}
	}

	logger.Info("article_deleted", map[string]interface{}{
		"article_id": article.ID,
	})

	h.Audit.LogAsync(services.AuditEntry{
		ActorKind:    kind,
		ActorID:      actorID,
		Action:       "article.delete",
		ResourceType: "article",
		ResourceID:   &articleID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "article deleted"})
}
