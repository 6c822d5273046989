package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/syndromed/backend/internal/middleware"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/internal/services"
	"github.com/syndromed/backend/pkg/logger"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/gorm"
)

// memoryBlobStore keeps uploaded objects in a map so tests can observe what
// the handlers stored and deleted without a running MinIO instance.
type memoryBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failPut    bool
	failDelete bool
	deleted    []string
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (s *memoryBlobStore) Put(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return "", errors.New("blob store rejected upload")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.objects[objectName] = data
	return "http://blobs.test/" + objectName, nil
}

func (s *memoryBlobStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectName)
	if s.failDelete {
		return errors.New("blob store rejected delete")
	}
	delete(s.objects, objectName)
	return nil
}

func (s *memoryBlobStore) has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

func (s *memoryBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	blobs *memoryBlobStore
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 30)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.Admin{},
		&models.Doctor{},
		&models.NormalUser{},
		&models.Case{},
		&models.SyndromeDetection{},
		&models.Article{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	blobs := newMemoryBlobStore()
	auditService := services.NewAuditService(db, nil)

	authHandler := NewAuthHandler(db, blobs, auditService)
	casesHandler := NewCasesHandler(db, blobs, auditService)
	detectionsHandler := NewDetectionsHandler(db, blobs, auditService)
	articlesHandler := NewArticlesHandler(db, blobs, auditService)
	accountsHandler := NewAccountsHandler(db, blobs, auditService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/auth/login", authHandler.Login)
	api.Get("/auth/me", authMiddleware.RequireAuth, authHandler.Me)

	api.Post("/admin/register", authHandler.RegisterAdmin)
	api.Post("/doctor/register", authHandler.RegisterDoctor)
	api.Post("/user/register", authHandler.RegisterUser)

	api.Get("/articles", articlesHandler.List)
	api.Delete("/detections/:id", authMiddleware.RequireAuth, detectionsHandler.Delete)

	doctorRoutes := api.Group("/doctor", authMiddleware.RequireAuth, middleware.DoctorOnly)
	doctorRoutes.Post("/cases", casesHandler.Create)
	doctorRoutes.Get("/cases", casesHandler.List)
	doctorRoutes.Get("/cases/:id", casesHandler.Get)
	doctorRoutes.Delete("/cases/:id", casesHandler.Delete)
	doctorRoutes.Get("/cases/:id/detections", detectionsHandler.ListByCase)
	doctorRoutes.Post("/detections", detectionsHandler.CreateForCase)
	doctorRoutes.Get("/detections", detectionsHandler.DoctorHistory)

	userRoutes := api.Group("/user", authMiddleware.RequireAuth, middleware.UserOnly)
	userRoutes.Post("/detections", detectionsHandler.CreateForSelf)
	userRoutes.Get("/detections", detectionsHandler.ListMine)
	userRoutes.Get("/profile", authHandler.Me)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Post("/articles", articlesHandler.Create)
	adminRoutes.Delete("/articles/:id", articlesHandler.Delete)
	adminRoutes.Delete("/accounts/:kind/:id", accountsHandler.Delete)

	return &testEnv{app: app, db: db, blobs: blobs}
}

func createTestAdmin(t *testing.T, db *gorm.DB, email, password string) (*models.Admin, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	admin := &models.Admin{Name: "Test Admin", Email: email, PasswordHash: hash}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("failed creating test admin: %v", err)
	}

	token, err := utils.GenerateToken(models.KindAdmin, admin.ID, admin.Email)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return admin, token
}

func createTestDoctor(t *testing.T, db *gorm.DB, email, password string) (*models.Doctor, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	doctor := &models.Doctor{
		Name:         "Test Doctor",
		Email:        email,
		PasswordHash: hash,
		Phone:        "+100000000",
	}
	if err := db.Create(doctor).Error; err != nil {
		t.Fatalf("failed creating test doctor: %v", err)
	}

	token, err := utils.GenerateToken(models.KindDoctor, doctor.ID, doctor.Email)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return doctor, token
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string) (*models.NormalUser, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.NormalUser{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Phone:        "+200000000",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(models.KindNormalUser, user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestCase(t *testing.T, db *gorm.DB, doctorID uint, description string) *models.Case {
	t.Helper()

	entry := &models.Case{DoctorID: doctorID, Description: description}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed creating test case: %v", err)
	}
	return entry
}

func createTestDetection(t *testing.T, db *gorm.DB, detection *models.SyndromeDetection) *models.SyndromeDetection {
	t.Helper()

	if detection.DetectedAt.IsZero() {
		detection.DetectedAt = time.Now().UTC()
	}
	if err := db.Create(detection).Error; err != nil {
		t.Fatalf("failed creating test detection: %v", err)
	}
	return detection
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// performFormRequest sends a multipart form. An empty fileField skips the file
// part entirely.
func performFormRequest(t *testing.T, app *fiber.App, method, path string, fields map[string]string, fileField, fileName string, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field %q: %v", key, err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("failed creating form file part: %v", err)
		}
		if _, err := part.Write([]byte("fake image bytes")); err != nil {
			t.Fatalf("failed writing form file content: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed finalizing multipart form: %v", err)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	requestHeaders["Content-Type"] = writer.FormDataContentType()

	return performRequest(t, app, method, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
