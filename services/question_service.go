package services

import (
	"log"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
)

// QuestionService serves ad-hoc question generation (practice/preview) with
// the same strategy selection the battle engine uses: arithmetic subjects
// stay local, everything else goes to the content provider with arithmetic
// as the fallback.
type QuestionService struct {
	Arithmetic QuestionGenerator
	Provider   QuestionGenerator // nil when no content provider is configured
}

func NewQuestionService(provider QuestionGenerator) *QuestionService {
	return &QuestionService{
		Arithmetic: NewArithmeticGenerator(),
		Provider:   provider,
	}
}

// Generate picks the strategy for the spec's subject.
func (s *QuestionService) Generate(spec models.QuestionSpec) (*models.Question, error) {
	if !arithmeticSubjects[spec.Subject] && s.Provider != nil {
		question, err := s.Provider.Generate(spec)
		if err == nil {
			return question, nil
		}
		log.Printf("Question provider failed for subject %q, falling back to arithmetic: %v", spec.Subject, err)
	}
	return s.Arithmetic.Generate(spec)
}

// PreviewEndpoint generates questions without persisting anything.
// Parents use it to sanity-check what a battle would ask.
func (s *QuestionService) PreviewEndpoint(c *fiber.Ctx) error {
	var req struct {
		State            string   `json:"state"`
		Grade            int      `json:"grade"`
		Subject          string   `json:"subject"`
		Difficulty       string   `json:"difficulty"`
		Count            int      `json:"count"`
		ExcludeStandards []string `json:"exclude_standards"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > 15 {
		count = 15
	}

	spec := models.QuestionSpec{
		State:            req.State,
		Grade:            req.Grade,
		Subject:          req.Subject,
		Difficulty:       req.Difficulty,
		ExcludeStandards: req.ExcludeStandards,
	}

	questions := make([]*models.Question, 0, count)
	for i := 0; i < count; i++ {
		q, err := s.Generate(spec)
		if err != nil {
			return ErrorResponse(c, err)
		}
		questions = append(questions, q)
		if q.StandardCode != "" {
			spec.ExcludeStandards = append(spec.ExcludeStandards, q.StandardCode)
		}
	}

	return c.JSON(fiber.Map{"questions": questions})
}
