package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PairingCodeTTL is how long a pairing code stays valid.
const PairingCodeTTL = 24 * time.Hour

// PairingService binds a child's watch device to its family record via
// short-lived 6-digit codes.
type PairingService struct {
	DB *gorm.DB
}

func NewPairingService(db *gorm.DB) *PairingService {
	return &PairingService{DB: db}
}

// IssueCode generates a fresh pairing code for an unpaired child,
// replacing any previous one.
func (ps *PairingService) IssueCode(childID string) (string, time.Time, error) {
	var child models.Child
	if err := ps.DB.First(&child, "id = ?", childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, err
	}
	if child.Paired {
		return "", time.Time{}, ErrAlreadyPaired
	}

	code := fmt.Sprintf("%06d", rand.Intn(1000000))
	expiresAt := time.Now().Add(PairingCodeTTL)

	err := ps.DB.Model(&child).Updates(map[string]interface{}{
		"pairing_code":            code,
		"pairing_code_expires_at": &expiresAt,
	}).Error
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// ValidateCode checks code match, non-expiry, and not-already-paired, then
// marks the child paired. The pending→paired flip is conditional so two
// devices racing on the same code cannot both bind.
func (ps *PairingService) ValidateCode(code string) (*models.Child, error) {
	var child models.Child
	if err := ps.DB.First(&child, "pairing_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if child.Paired {
		return nil, ErrAlreadyPaired
	}
	if child.PairingCodeExpiresAt == nil || time.Now().After(*child.PairingCodeExpiresAt) {
		return nil, ErrExpired
	}

	now := time.Now()
	res := ps.DB.Model(&models.Child{}).
		Where("id = ? AND paired = ?", child.ID, false).
		Updates(map[string]interface{}{
			"paired":    true,
			"paired_at": &now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyPaired
	}

	child.Paired = true
	child.PairedAt = &now
	return &child, nil
}

// --- HTTP handlers ---

// IssueCodeEndpoint issues a new pairing code for a child.
func (ps *PairingService) IssueCodeEndpoint(c *fiber.Ctx) error {
	childID := c.Params("id")
	if _, err := uuid.Parse(childID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid child ID"})
	}

	code, expiresAt, err := ps.IssueCode(childID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"pairing_code": code, "expires_at": expiresAt})
}

// ValidateCodeEndpoint is called by the watch app with the code the child
// typed in.
func (ps *PairingService) ValidateCodeEndpoint(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code" validate:"required,len=6"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Code) != 6 {
		return ErrorResponse(c, ErrInvalidCode)
	}

	child, err := ps.ValidateCode(req.Code)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"valid":     true,
		"child_id":  child.ID,
		"family_id": child.FamilyID,
	})
}
