package services

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError reports the field that failed and why, so clients can
// correct their input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// DetectionInput is the plain field set validated before any blob write or
// row insert happens.
type DetectionInput struct {
	CaseID        *uint
	NormalUserID  *uint
	Description   string
	Name          string
	Age           int
	Gender        string
	Nationality   string
	ImageFilename string
}

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsAllowedImage reports whether the filename carries one of the accepted
// image extensions, case-insensitively. The same rule gates profile and
// article images.
func IsAllowedImage(filename string) bool {
	return allowedImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ValidateDetection enforces the central invariant of the system: a detection
// belongs to exactly one of a case or a self-submitting user, and the owning
// branch dictates the required field set. Rules are applied in order; the
// first violation is returned.
func ValidateDetection(in DetectionInput) *ValidationError {
	if in.CaseID != nil && in.NormalUserID != nil {
		return &ValidationError{Field: "case_id/normal_user_id", Reason: "must not both be set"}
	}
	if in.CaseID == nil && in.NormalUserID == nil {
		return &ValidationError{Field: "case_id/normal_user_id", Reason: "exactly one must be set"}
	}

	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Reason: "is required"}
	}

	if in.NormalUserID != nil {
		if strings.TrimSpace(in.Name) == "" {
			return &ValidationError{Field: "name", Reason: "is required for self-submitted detections"}
		}
		if in.Age <= 0 {
			return &ValidationError{Field: "age", Reason: "is required for self-submitted detections"}
		}
		if strings.TrimSpace(in.Gender) == "" {
			return &ValidationError{Field: "gender", Reason: "is required for self-submitted detections"}
		}
		if strings.TrimSpace(in.Nationality) == "" {
			return &ValidationError{Field: "nationality", Reason: "is required for self-submitted detections"}
		}
	}

	if strings.TrimSpace(in.ImageFilename) == "" {
		return &ValidationError{Field: "image", Reason: "is required"}
	}
	if !IsAllowedImage(in.ImageFilename) {
		return &ValidationError{Field: "image", Reason: "must be a .jpg, .jpeg or .png file"}
	}

	return nil
}
