package handlers

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/syndromed/backend/internal/models"
)

func TestDeleteAccount(t *testing.T) {
	t.Run("deleting a doctor removes their cases, detections and images", func(t *testing.T) {
		env := setupTestEnv(t)
		_, adminToken := createTestAdmin(t, env.db, "admin@example.com", "admin-pass-1")
		doctor, _ := createTestDoctor(t, env.db, "doc@example.com", "doctor-pass-1")
		survivor, _ := createTestDoctor(t, env.db, "other@example.com", "doctor-pass-2")

		caseA := createTestCase(t, env.db, doctor.ID, "case a")
		caseB := createTestCase(t, env.db, doctor.ID, "case b")
		foreign := createTestCase(t, env.db, survivor.ID, "foreign case")

		for i, entry := range []*models.Case{caseA, caseB} {
			caseID := entry.ID
			objectName := fmt.Sprintf("detections/case/img-%d.png", i)
			env.blobs.objects[objectName] = []byte("bytes")
			createTestDetection(t, env.db, &models.SyndromeDetection{
				Result: "negative", CaseID: &caseID, Description: "scan",
				ImagePath: objectName,
			})
		}
		foreignID := foreign.ID
		env.blobs.objects["detections/case/keep.png"] = []byte("bytes")
		createTestDetection(t, env.db, &models.SyndromeDetection{
			Result: "negative", CaseID: &foreignID, Description: "scan",
			ImagePath: "detections/case/keep.png",
		})

		resp := performRequest(t, env.app, "DELETE", fmt.Sprintf("/api/admin/accounts/doctor/%d", doctor.ID), nil, authHeaders(adminToken))
		assertStatus(t, resp, fiber.StatusOK)

		var doctorCount, caseCount, detectionCount int64
		env.db.Model(&models.Doctor{}).Count(&doctorCount)
		env.db.Model(&models.Case{}).Count(&caseCount)
		env.db.Model(&models.SyndromeDetection{}).Count(&detectionCount)
		if doctorCount != 1 || caseCount != 1 || detectionCount != 1 {
			t.Fatalf("expected only the other doctor's data to survive, got %d doctors, %d cases, %d detections",
				doctorCount, caseCount, detectionCount)
		}
		if !env.blobs.has("detections/case/keep.png") {
			t.Fatal("expected the surviving doctor's detection image to remain")
		}
		if env.blobs.has("detections/case/img-0.png") || env.blobs.has("detections/case/img-1.png") {
			t.Fatal("expected the deleted doctor's detection images to be removed")
		}
	})

	t.Run("deleting a user removes their self-submitted detections", func(t *testing.T) {
		env := setupTestEnv(t)
		_, adminToken := createTestAdmin(t, env.db, "admin@example.com", "admin-pass-1")
		user, userToken := createTestUser(t, env.db, "patient@example.com", "user-pass-1")

		userID := user.ID
		env.blobs.objects["detections/self/img.png"] = []byte("bytes")
		createTestDetection(t, env.db, &models.SyndromeDetection{
			Result: "negative", NormalUserID: &userID, Description: "self check",
			Name: "Test User", Age: 30, Gender: "female", Nationality: "Egyptian",
			ImagePath: "detections/self/img.png",
		})

		resp := performRequest(t, env.app, "DELETE", fmt.Sprintf("/api/admin/accounts/user/%d", user.ID), nil, authHeaders(adminToken))
		assertStatus(t, resp, fiber.StatusOK)

		var userCount, detectionCount int64
		env.db.Model(&models.NormalUser{}).Count(&userCount)
		env.db.Model(&models.SyndromeDetection{}).Count(&detectionCount)
		if userCount != 0 || detectionCount != 0 {
			t.Fatalf("expected the user and detections to be gone, got %d users, %d detections", userCount, detectionCount)
		}
		if env.blobs.has("detections/self/img.png") {
			t.Fatal("expected the detection image to be removed")
		}

		resp = performRequest(t, env.app, "GET", "/api/auth/me", nil, authHeaders(userToken))
		assertStatus(t, resp, fiber.StatusUnauthorized)
	})

	t.Run("rejects an unknown kind tag", func(t *testing.T) {
		env := setupTestEnv(t)
		_, adminToken := createTestAdmin(t, env.db, "admin@example.com", "admin-pass-1")

		resp := performRequest(t, env.app, "DELETE", "/api/admin/accounts/admin/1", nil, authHeaders(adminToken))
		assertStatus(t, resp, fiber.StatusBadRequest)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "kind must be \"user\" or \"doctor\"")
	})

	t.Run("returns 404 for a missing account", func(t *testing.T) {
		env := setupTestEnv(t)
		_, adminToken := createTestAdmin(t, env.db, "admin@example.com", "admin-pass-1")

		resp := performRequest(t, env.app, "DELETE", "/api/admin/accounts/doctor/9999", nil, authHeaders(adminToken))
		assertStatus(t, resp, fiber.StatusNotFound)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "account not found")
	})

	t.Run("only admins may delete accounts", func(t *testing.T) {
		env := setupTestEnv(t)
		_, doctorToken := createTestDoctor(t, env.db, "doc@example.com", "doctor-pass-1")
		user, _ := createTestUser(t, env.db, "patient@example.com", "user-pass-1")

		resp := performRequest(t, env.app, "DELETE", fmt.Sprintf("/api/admin/accounts/user/%d", user.ID), nil, authHeaders(doctorToken))
		assertStatus(t, resp, fiber.StatusForbidden)

		var doctorCount, userCount int64
		env.db.Model(&models.Doctor{}).Count(&doctorCount)
		env.db.Model(&models.NormalUser{}).Count(&userCount)
		if doctorCount != 1 || userCount != 1 {
			t.Fatalf("expected both accounts to survive, got %d doctors, %d users", doctorCount, userCount)
		}
	})
}
