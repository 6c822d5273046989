package services

import (
	"errors"

	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/gorm"
)

// ErrNoMatch is returned when no principal table holds a verified match for
// the submitted credentials. Callers must not surface which table, if any,
// held the email.
var ErrNoMatch = errors.New("no principal matched credentials")

// ResolutionOrder is the fixed precedence login resolution walks. If an email
// exists in more than one table, the earlier kind wins.
var ResolutionOrder = []models.PrincipalKind{
	models.KindAdmin,
	models.KindDoctor,
	models.KindNormalUser,
}

type IdentityService struct {
	DB *gorm.DB
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{DB: db}
}

// Authenticate looks the email up in each principal table in ResolutionOrder
// and verifies the password against the stored hash. A failed verification
// does not short-circuit: resolution continues with the next table, so a
// wrong password leaks nothing about which table matched. No side effects.
func (s *IdentityService) Authenticate(email, password string) (*models.Principal, error) {
	for _, kind := range ResolutionOrder {
		principal, hash, err := s.lookup(kind, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		if !utils.CheckPassword(password, hash) {
			continue
		}
		return principal, nil
	}
	return nil, ErrNoMatch
}

// FindByKindID re-fetches a principal record by its token identity. Used by
// the authorization guard so tokens referencing since-deleted accounts are
// rejected before expiry.
func (s *IdentityService) FindByKindID(kind models.PrincipalKind, id uint) (*models.Principal, error) {
	switch kind {
	case models.KindAdmin:
		var admin models.Admin
		if err := s.DB.First(&admin, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return admin.Principal(), nil
	case models.KindDoctor:
		var doctor models.Doctor
		if err := s.DB.First(&doctor, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return doctor.Principal(), nil
	case models.KindNormalUser:
		var user models.NormalUser
		if err := s.DB.First(&user, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return user.Principal(), nil
	default:
		return nil, gorm.ErrRecordNotFound
	}
}

func (s *IdentityService) lookup(kind models.PrincipalKind, email string) (*models.Principal, string, error) {
	switch kind {
	case models.KindAdmin:
		var admin models.Admin
		if err := s.DB.First(&admin, "email = ?", email).Error; err != nil {
			return nil, "", err
		}
		return admin.Principal(), admin.PasswordHash, nil
	case models.KindDoctor:
		var doctor models.Doctor
		if err := s.DB.First(&doctor, "email = ?", email).Error; err != nil {
			return nil, "", err
		}
		return doctor.Principal(), doctor.PasswordHash, nil
	case models.KindNormalUser:
		var user models.NormalUser
		if err := s.DB.First(&user, "email = ?", email).Error; err != nil {
			return nil, "", err
		}
		return user.Principal(), user.PasswordHash, nil
	default:
		return nil, "", gorm.ErrRecordNotFound
	}
}
