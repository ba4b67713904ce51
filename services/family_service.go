package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// FamilyService manages families, parents, children and the family's
// validation tasks.
type FamilyService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewFamilyService(db *gorm.DB, ledger *LedgerService) *FamilyService {
	return &FamilyService{DB: db, Ledger: ledger}
}

// newReferralCode builds an 8-char uppercase code from the parent's name
// prefix plus random digits, retrying on the (unlikely) collision.
func newReferralCode(tx *gorm.DB, displayName string) (string, error) {
	prefix := strings.ToUpper(slug.Make(displayName))
	prefix = strings.ReplaceAll(prefix, "-", "")
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	if prefix == "" {
		prefix = "MLLR"
	}

	for i := 0; i < 10; i++ {
		code := fmt.Sprintf("%s%04d", prefix, rand.Intn(10000))
		var count int64
		if err := tx.Model(&models.Parent{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate referral code")
}

// --- HTTP handlers ---

// CreateFamily creates a family together with its founding parent.
func (s *FamilyService) CreateFamily(c *fiber.Ctx) error {
	var req struct {
		Name       string `json:"name" validate:"required"`
		ParentName string `json:"parent_name" validate:"required"`
		Email      string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.ParentName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and parent_name are required"})
	}

	var family models.Family
	var parent models.Parent
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		parentID := uuid.NewString()
		family = models.Family{
			ID:        uuid.NewString(),
			Name:      req.Name,
			CreatedBy: parentID,
		}
		if err := tx.Create(&family).Error; err != nil {
			return err
		}

		code, err := newReferralCode(tx, req.ParentName)
		if err != nil {
			return err
		}
		parent = models.Parent{
			ID:           parentID,
			FamilyID:     family.ID,
			DisplayName:  req.ParentName,
			Email:        req.Email,
			ReferralCode: code,
		}
		return tx.Create(&parent).Error
	})
	if err != nil {
		log.Printf("DB Error creating family: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create family"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"family": family, "parent": parent})
}

// AddChild adds a child profile to a family.
func (s *FamilyService) AddChild(c *fiber.Ctx) error {
	familyID := c.Params("id")

	var req struct {
		DisplayName string `json:"display_name" validate:"required"`
		Grade       int    `json:"grade"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.DisplayName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name is required"})
	}

	var family models.Family
	if err := s.DB.First(&family, "id = ?", familyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	grade := req.Grade
	if grade <= 0 {
		grade = 3
	}
	child := models.Child{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		DisplayName: req.DisplayName,
		Grade:       grade,
		IsActive:    true,
	}
	if err := s.DB.Create(&child).Error; err != nil {
		log.Printf("DB Error creating child: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create child"})
	}

	return c.Status(fiber.StatusCreated).JSON(child)
}

// ListChildren returns a family's children with their derived balances.
func (s *FamilyService) ListChildren(c *fiber.Ctx) error {
	familyID := c.Params("id")

	var children []models.Child
	if err := s.DB.Where("family_id = ?", familyID).Order("created_at ASC").Find(&children).Error; err != nil {
		log.Printf("DB Error fetching children for family %s: %v", familyID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch children"})
	}

	for i := range children {
		balance, err := s.Ledger.Balance(children[i].ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute balance"})
		}
		children[i].MollarsBalance = balance
	}

	return c.JSON(children)
}

// DeactivateChild soft-disables a child profile. Children are never
// deleted; the ledger history stays intact.
func (s *FamilyService) DeactivateChild(c *fiber.Ctx) error {
	childID := c.Params("id")
	if _, err := uuid.Parse(childID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid child ID"})
	}

	res := s.DB.Model(&models.Child{}).Where("id = ?", childID).Update("is_active", false)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to deactivate child"})
	}
	if res.RowsAffected == 0 {
		return ErrorResponse(c, ErrNotFound)
	}
	return c.JSON(fiber.Map{"success": true, "child_id": childID, "is_active": false})
}

// CreateTask adds a validation task to a family.
func (s *FamilyService) CreateTask(c *fiber.Ctx) error {
	familyID := c.Params("id")

	var req struct {
		Name          string `json:"name" validate:"required"`
		MollarsReward int64  `json:"mollars_reward" validate:"required,gt=0"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.MollarsReward <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and a positive mollars_reward are required"})
	}

	var family models.Family
	if err := s.DB.First(&family, "id = ?", familyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	task := models.ValidationTask{
		ID:            uuid.NewString(),
		FamilyID:      familyID,
		Name:          req.Name,
		Slug:          slug.Make(req.Name),
		MollarsReward: req.MollarsReward,
		IsActive:      true,
	}
	if err := s.DB.Create(&task).Error; err != nil {
		log.Printf("DB Error creating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create task"})
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// ListTasks returns the family's tasks; pass active=true to filter.
func (s *FamilyService) ListTasks(c *fiber.Ctx) error {
	familyID := c.Params("id")

	query := s.DB.Where("family_id = ?", familyID)
	if strings.EqualFold(c.Query("active"), "true") {
		query = query.Where("is_active = ?", true)
	}

	var tasks []models.ValidationTask
	if err := query.Order("created_at ASC").Find(&tasks).Error; err != nil {
		log.Printf("DB Error fetching tasks for family %s: %v", familyID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch tasks"})
	}
	return c.JSON(tasks)
}

// UpdateTask edits a task's name, reward, or active flag.
func (s *FamilyService) UpdateTask(c *fiber.Ctx) error {
	taskID := c.Params("id")
	if _, err := uuid.Parse(taskID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid task ID"})
	}

	var task models.ValidationTask
	if err := s.DB.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name          *string `json:"name"`
		MollarsReward *int64  `json:"mollars_reward"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		task.Name = *req.Name
		task.Slug = slug.Make(*req.Name)
	}
	if req.MollarsReward != nil {
		if *req.MollarsReward <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "mollars_reward must be positive"})
		}
		task.MollarsReward = *req.MollarsReward
	}
	if req.IsActive != nil {
		task.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&task).Error; err != nil {
		log.Printf("DB Error updating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update task"})
	}
	return c.JSON(task)
}

// GetProgress returns the child's per-standard mastery counters.
func (s *FamilyService) GetProgress(c *fiber.Ctx) error {
	childID := c.Params("id")

	var progress []models.LearningProgress
	if err := s.DB.Where("child_id = ?", childID).Order("standard_code ASC").Find(&progress).Error; err != nil {
		log.Printf("DB Error fetching progress for child %s: %v", childID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch progress"})
	}
	return c.JSON(fiber.Map{"child_id": childID, "progress": progress})
}
