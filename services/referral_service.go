package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultReferralBonus is the Mollars paid to each child of the referrer's
// family when a referred signup completes.
const DefaultReferralBonus = 50

// ReferralService awards one-time signup bonuses keyed by referral code.
type ReferralService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Bonus  int64
}

func NewReferralService(db *gorm.DB, ledger *LedgerService) *ReferralService {
	bonus := int64(DefaultReferralBonus)
	if v := os.Getenv("REFERRAL_BONUS_MOLLARS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			bonus = parsed
		}
	}
	return &ReferralService{DB: db, Ledger: ledger, Bonus: bonus}
}

// ProcessSignup credits the referrer's children once for a completed
// referred signup. The signup_complete event is the outer guard
// (ErrAlreadyProcessed on replay); each payout additionally carries a
// composite (referee, child) dedup reference, so a retry after a partial
// failure between event and payout still cannot double-pay any child.
func (s *ReferralService) ProcessSignup(refereeID, referralCode string) (*models.ReferralEvent, error) {
	code := strings.ToUpper(strings.TrimSpace(referralCode))
	if code == "" || refereeID == "" {
		return nil, ErrInvalidCode
	}

	var event *models.ReferralEvent
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var referrer models.Parent
		if err := tx.First(&referrer, "referral_code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCode
			}
			return err
		}

		if referrer.ID == refereeID {
			return ErrSelfReferral
		}

		var existing models.ReferralEvent
		err := tx.Where("referee_id = ? AND event_type = ?", refereeID, models.ReferralSignupComplete).
			First(&existing).Error
		if err == nil {
			return ErrAlreadyProcessed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var children []models.Child
		if err := tx.Where("family_id = ? AND is_active = ?", referrer.FamilyID, true).
			Find(&children).Error; err != nil {
			return err
		}

		var awarded int64
		for _, child := range children {
			ref := fmt.Sprintf("%s:%s", refereeID, child.ID)
			if _, err := s.Ledger.AppendTx(tx, child.ID, s.Bonus, models.ReasonReferralBonus, ref); err != nil {
				if errors.Is(err, ErrDuplicateReference) {
					// paid on an earlier partial attempt, never re-pay
					continue
				}
				return err
			}
			awarded += s.Bonus
		}

		// Best-effort back-link, mirrors the referrer lookup the dashboard does
		tx.Model(&models.Parent{}).Where("id = ?", refereeID).Update("referred_by_code", code)

		event = &models.ReferralEvent{
			ID:             uuid.NewString(),
			ReferrerID:     referrer.ID,
			RefereeID:      refereeID,
			EventType:      models.ReferralSignupComplete,
			CodeUsed:       code,
			MollarsAwarded: awarded,
		}
		if err := tx.Create(event).Error; err != nil {
			if isUniqueViolation(err) {
				// concurrent replay recorded the signup first
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// RecordClick logs a referral-link click. Analytics only, never pays.
func (s *ReferralService) RecordClick(referralCode string) error {
	code := strings.ToUpper(strings.TrimSpace(referralCode))

	var referrer models.Parent
	if err := s.DB.First(&referrer, "referral_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	return s.DB.Create(&models.ReferralEvent{
		ID:         uuid.NewString(),
		ReferrerID: referrer.ID,
		RefereeID:  "",
		EventType:  models.ReferralClick,
		CodeUsed:   code,
	}).Error
}

// --- HTTP handlers ---

// ProcessSignupEndpoint is called by onboarding when a referred signup
// completes.
func (s *ReferralService) ProcessSignupEndpoint(c *fiber.Ctx) error {
	var req struct {
		UserID       string `json:"user_id" validate:"required"`
		ReferralCode string `json:"referral_code" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.ReferralCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and referral_code are required"})
	}

	event, err := s.ProcessSignup(req.UserID, req.ReferralCode)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"mollarsAwarded": event.MollarsAwarded,
		"referrerId":     event.ReferrerID,
	})
}

// RecordClickEndpoint logs a share-link click.
func (s *ReferralService) RecordClickEndpoint(c *fiber.Ctx) error {
	var req struct {
		ReferralCode string `json:"referral_code" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := s.RecordClick(req.ReferralCode); err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetStats returns the referrer's dashboard numbers.
func (s *ReferralService) GetStats(c *fiber.Ctx) error {
	parentID := c.Params("parent_id")

	var parent models.Parent
	if err := s.DB.First(&parent, "id = ?", parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var clicks, signups int64
	if err := s.DB.Model(&models.ReferralEvent{}).
		Where("referrer_id = ? AND event_type = ?", parentID, models.ReferralClick).
		Count(&clicks).Error; err != nil {
		log.Printf("DB Error counting clicks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if err := s.DB.Model(&models.ReferralEvent{}).
		Where("referrer_id = ? AND event_type = ?", parentID, models.ReferralSignupComplete).
		Count(&signups).Error; err != nil {
		log.Printf("DB Error counting signups: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	conversionRate := 0.0
	if clicks > 0 {
		conversionRate = float64(signups) / float64(clicks) * 100
	}

	var recent []models.ReferralEvent
	s.DB.Where("referrer_id = ? AND event_type = ?", parentID, models.ReferralSignupComplete).
		Order("created_at DESC").Limit(5).Find(&recent)

	return c.JSON(fiber.Map{
		"code":     parent.ReferralCode,
		"shareUrl": fmt.Sprintf("https://the67game.com/?ref=%s", parent.ReferralCode),
		"stats": fiber.Map{
			"clicks":             clicks,
			"signups":            signups,
			"conversionRate":     conversionRate,
			"totalMollarsEarned": signups * s.Bonus,
		},
		"recentSignups": recent,
	})
}
