package services

import (
	"errors"
	"log"
	"strconv"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService owns the append-only Mollar ledger. It is the single source
// of truth for child balances: every other service appends through it and
// nothing anywhere mutates a stored balance field.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// AppendTx appends one ledger entry inside the caller's transaction.
// Fails with ErrInvalidAmount for zero amounts (and non-positive amounts on
// reward reasons), ErrDuplicateReference if the (child, reason, reference)
// key was already paid. Callers retrying with the same reference rely on
// that instead of external locking.
func (s *LedgerService) AppendTx(tx *gorm.DB, childID string, amount int64, reason models.TransactionReason, referenceID string) (*models.MollarTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if models.RewardReasons[reason] && amount < 0 {
		return nil, ErrInvalidAmount
	}

	var existing models.MollarTransaction
	err := tx.Where("child_id = ? AND reason = ? AND reference_id = ?", childID, reason, referenceID).
		First(&existing).Error
	if err == nil {
		return nil, ErrDuplicateReference
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entry := &models.MollarTransaction{
		ID:          uuid.NewString(),
		ChildID:     childID,
		Amount:      amount,
		Reason:      reason,
		ReferenceID: referenceID,
	}
	if err := tx.Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			// concurrent writer won the race, same outcome as the check above
			return nil, ErrDuplicateReference
		}
		log.Printf("DB Error appending ledger entry: %v", err)
		return nil, err
	}
	return entry, nil
}

// Append is AppendTx in its own transaction.
func (s *LedgerService) Append(childID string, amount int64, reason models.TransactionReason, referenceID string) (*models.MollarTransaction, error) {
	var entry *models.MollarTransaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		e, err := s.AppendTx(tx, childID, amount, reason, referenceID)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance derives the child's balance by summation over all entries.
func (s *LedgerService) Balance(childID string) (int64, error) {
	var balance int64
	err := s.DB.Model(&models.MollarTransaction{}).
		Where("child_id = ?", childID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&balance).Error
	return balance, err
}

// History returns the child's entries, newest first.
func (s *LedgerService) History(childID string, limit int) ([]models.MollarTransaction, error) {
	var entries []models.MollarTransaction
	q := s.DB.Where("child_id = ?", childID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// --- HTTP handlers ---

// GetBalance returns the derived balance for a child.
func (s *LedgerService) GetBalance(c *fiber.Ctx) error {
	childID := c.Params("id")
	if _, err := uuid.Parse(childID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid child ID"})
	}

	var child models.Child
	if err := s.DB.First(&child, "id = ?", childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	balance, err := s.Balance(childID)
	if err != nil {
		log.Printf("DB Error computing balance for child %s: %v", childID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute balance"})
	}

	return c.JSON(fiber.Map{"child_id": childID, "mollars_balance": balance})
}

// GetLedger returns the child's transaction history.
func (s *LedgerService) GetLedger(c *fiber.Ctx) error {
	childID := c.Params("id")
	if _, err := uuid.Parse(childID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid child ID"})
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit parameter"})
		}
		limit = l
	}

	entries, err := s.History(childID, limit)
	if err != nil {
		log.Printf("DB Error fetching ledger for child %s: %v", childID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch ledger"})
	}

	return c.JSON(fiber.Map{"child_id": childID, "entries": entries, "count": len(entries)})
}

// CreateAdjustment lets a parent credit or debit a child manually. Each call
// gets a fresh reference so adjustments stack; corrections are offsetting
// entries, never edits.
func (s *LedgerService) CreateAdjustment(c *fiber.Ctx) error {
	childID := c.Params("id")
	if _, err := uuid.Parse(childID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid child ID"})
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var child models.Child
	if err := s.DB.First(&child, "id = ?", childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	entry, err := s.Append(childID, req.Amount, models.ReasonManualAdjustment, uuid.NewString())
	if err != nil {
		return ErrorResponse(c, err)
	}

	balance, _ := s.Balance(childID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry":           entry,
		"mollars_balance": balance,
	})
}
