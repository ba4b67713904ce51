package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"
	"github.com/veebeeyoukay/6-7game-beta/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PendingRequestWindow is how long a validation request stays resolvable.
// Matches the pairing-code convention.
const PendingRequestWindow = 24 * time.Hour

// ValidationService runs the task-validation workflow: a child claims a
// completed task, a parent approves or denies, and approval pays out through
// the ledger exactly once.
type ValidationService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewValidationService(db *gorm.DB, ledger *LedgerService) *ValidationService {
	return &ValidationService{DB: db, Ledger: ledger}
}

// RequestValidation creates a pending request for (child, task). Fails with
// ErrDuplicatePending while an unresolved request exists for the pair, and
// ErrNotFound when the task is missing, inactive, or not owned by the
// child's family. Requests are scoped through task→family ownership only.
func (s *ValidationService) RequestValidation(childID, taskID string, photoURL *string) (*models.ValidationRequest, error) {
	var request *models.ValidationRequest

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var child models.Child
		if err := tx.First(&child, "id = ? AND is_active = ?", childID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var task models.ValidationTask
		if err := tx.First(&task, "id = ? AND family_id = ? AND is_active = ?", taskID, child.FamilyID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Stale pending requests expire lazily before the duplicate check so
		// an abandoned claim never blocks a new one.
		if err := expirePendingRequests(tx, childID, taskID); err != nil {
			return err
		}

		var existing models.ValidationRequest
		err := tx.Where("task_id = ? AND child_id = ? AND status = ?", taskID, childID, models.RequestPending).
			First(&existing).Error
		if err == nil {
			return ErrDuplicatePending
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		request = &models.ValidationRequest{
			ID:          uuid.NewString(),
			TaskID:      taskID,
			ChildID:     childID,
			Status:      models.RequestPending,
			PhotoURL:    photoURL,
			RequestedAt: time.Now(),
		}
		if err := tx.Create(request).Error; err != nil {
			if isUniqueViolation(err) {
				// concurrent claim won the race on the partial index
				return ErrDuplicatePending
			}
			return err
		}

		return enqueueNotification(tx, models.NotifyValidationRequested, fiber.Map{
			"requestId":    request.ID,
			"childId":      childID,
			"childName":    child.DisplayName,
			"taskName":     task.Name,
			"rewardAmount": task.MollarsReward,
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Resolve applies a parent decision to a pending request. Approval pays the
// task reward through the ledger with the request ID as idempotency key: if
// the entry already exists the resolve is still a success (retry of the same
// approval). The status transition is a conditional update, so concurrent
// resolves of the same request cannot both win.
func (s *ValidationService) Resolve(requestID, parentID string, approve bool) (*models.ValidationRequest, error) {
	var request models.ValidationRequest
	if err := s.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// The lazy expiry transition must outlive the sentinel return, so it
	// runs outside the resolution transaction (a rollback would otherwise
	// undo it and leave the row pending).
	if request.Status == models.RequestPending && time.Since(request.RequestedAt) > PendingRequestWindow {
		s.DB.Model(&models.ValidationRequest{}).
			Where("id = ? AND status = ?", requestID, models.RequestPending).
			Update("status", models.RequestExpired)
		return nil, ErrExpired
	}
	if request.Status != models.RequestPending {
		if request.Status == models.RequestExpired {
			return nil, ErrExpired
		}
		return nil, ErrAlreadyResolved
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		newStatus := models.RequestDenied
		if approve {
			newStatus = models.RequestApproved
		}
		now := time.Now()

		res := tx.Model(&models.ValidationRequest{}).
			Where("id = ? AND status = ?", requestID, models.RequestPending).
			Updates(map[string]interface{}{
				"status":      newStatus,
				"resolved_at": &now,
				"resolved_by": parentID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race to another resolver
			return ErrAlreadyResolved
		}

		request.Status = newStatus
		request.ResolvedAt = &now
		request.ResolvedBy = &parentID

		if approve {
			var task models.ValidationTask
			if err := tx.First(&task, "id = ?", request.TaskID).Error; err != nil {
				return err
			}
			_, err := s.Ledger.AppendTx(tx, request.ChildID, task.MollarsReward, models.ReasonTaskReward, request.ID)
			if err != nil && !errors.Is(err, ErrDuplicateReference) {
				return err
			}
		}

		decision := "denied"
		if approve {
			decision = "approved"
		}
		return enqueueNotification(tx, models.NotifyValidationResolved, fiber.Map{
			"requestId": request.ID,
			"decision":  decision,
		})
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// PendingForFamily lists unresolved requests for a family's tasks, expiring
// stale ones on the way.
func (s *ValidationService) PendingForFamily(familyID string) ([]models.ValidationRequest, error) {
	cutoff := time.Now().Add(-PendingRequestWindow)
	if err := s.DB.Model(&models.ValidationRequest{}).
		Where("status = ? AND requested_at < ?", models.RequestPending, cutoff).
		Update("status", models.RequestExpired).Error; err != nil {
		return nil, err
	}

	var requests []models.ValidationRequest
	err := s.DB.
		Joins("JOIN validation_tasks ON validation_tasks.id = validation_requests.task_id").
		Where("validation_tasks.family_id = ? AND validation_requests.status = ?", familyID, models.RequestPending).
		Order("validation_requests.requested_at ASC").
		Find(&requests).Error
	return requests, err
}

func expirePendingRequests(tx *gorm.DB, childID, taskID string) error {
	cutoff := time.Now().Add(-PendingRequestWindow)
	return tx.Model(&models.ValidationRequest{}).
		Where("task_id = ? AND child_id = ? AND status = ? AND requested_at < ?",
			taskID, childID, models.RequestPending, cutoff).
		Update("status", models.RequestExpired).Error
}

// enqueueNotification appends an outbox row in the workflow's transaction.
// The notify worker delivers it; the workflow never blocks on the webhook.
func enqueueNotification(tx *gorm.DB, eventType models.NotificationEventType, payload fiber.Map) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.Create(&models.NotificationEvent{
		ID:          uuid.NewString(),
		EventType:   eventType,
		PayloadJSON: string(body),
	}).Error
}

// --- HTTP handlers ---

// CreateRequest handles a child's validation claim.
func (s *ValidationService) CreateRequest(c *fiber.Ctx) error {
	var req struct {
		ChildID  string  `json:"child_id" validate:"required,uuid"`
		TaskID   string  `json:"task_id" validate:"required,uuid"`
		PhotoURL *string `json:"photo_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ChildID == "" || req.TaskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "child_id and task_id are required"})
	}

	request, err := s.RequestValidation(req.ChildID, req.TaskID, req.PhotoURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicatePending) {
			return ErrorResponse(c, err)
		}
		log.Printf("Failed to create validation request: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create validation request"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"requestId": request.ID,
		"expiresIn": "24 hours",
	})
}

// ResolveRequest handles a parent's approve/deny decision.
func (s *ValidationService) ResolveRequest(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if _, err := uuid.Parse(requestID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request ID"})
	}

	var req struct {
		Decision string `json:"decision" validate:"required,oneof=approve deny"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Decision != "approve" && req.Decision != "deny" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decision must be approve or deny"})
	}

	parentID := c.Locals("user_id").(string)

	request, err := s.Resolve(requestID, parentID, req.Decision == "approve")
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "request": request})
}

// ListFamilyRequests returns the family's pending requests.
func (s *ValidationService) ListFamilyRequests(c *fiber.Ctx) error {
	familyID := c.Params("id")
	requests, err := s.PendingForFamily(familyID)
	if err != nil {
		log.Printf("DB Error fetching requests for family %s: %v", familyID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch requests"})
	}
	return c.JSON(fiber.Map{"requests": requests, "count": len(requests)})
}

// UploadProofPhoto attaches a photo to a pending request. The file lands in
// R2; only the URL is stored.
func (s *ValidationService) UploadProofPhoto(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if _, err := uuid.Parse(requestID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request ID"})
	}

	var request models.ValidationRequest
	if err := s.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if request.Status != models.RequestPending {
		return ErrorResponse(c, ErrAlreadyResolved)
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "photo file is required"})
	}

	key := fmt.Sprintf("validation-proofs/%s%s", request.ID, utils.FileExt(fileHeader.Filename))
	url, err := utils.UploadFileToR2(fileHeader, key)
	if err != nil {
		log.Printf("R2 upload failed for request %s: %v", requestID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload photo"})
	}

	if err := s.DB.Model(&request).Update("photo_url", url).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save photo URL"})
	}

	return c.JSON(fiber.Map{"success": true, "photo_url": url})
}
