package services

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
)

// QuestionGenerator produces one multiple-choice question for a spec.
// Implementations: ArithmeticGenerator (instant, offline-capable) and
// ProviderGenerator (standards-aligned subjects via the external content
// provider).
type QuestionGenerator interface {
	Generate(spec models.QuestionSpec) (*models.Question, error)
}

// ArithmeticGenerator builds times-table (grade 3+) or addition questions
// with three plausible distractors.
type ArithmeticGenerator struct {
	MinOperand int
	MaxOperand int
}

func NewArithmeticGenerator() *ArithmeticGenerator {
	return &ArithmeticGenerator{MinOperand: 2, MaxOperand: 9}
}

func (g *ArithmeticGenerator) Generate(spec models.QuestionSpec) (*models.Question, error) {
	lo, hi := g.MinOperand, g.MaxOperand
	if lo < 1 || hi <= lo {
		lo, hi = 2, 9
	}

	num1 := lo + rand.Intn(hi-lo+1)
	num2 := lo + rand.Intn(hi-lo+1)

	var prompt string
	var answer int
	if spec.Grade >= 3 {
		answer = num1 * num2
		prompt = fmt.Sprintf("%d × %d", num1, num2)
	} else {
		answer = num1 + num2
		prompt = fmt.Sprintf("%d + %d", num1, num2)
	}

	options := make([]string, 0, 4)
	for _, d := range generateDistractors(answer) {
		options = append(options, strconv.Itoa(d))
	}
	options = append(options, strconv.Itoa(answer))
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	difficulty := spec.Difficulty
	if difficulty == "" {
		difficulty = "easy"
	}

	return &models.Question{
		ID:            uuid.NewString(),
		Prompt:        prompt,
		Options:       options,
		CorrectAnswer: strconv.Itoa(answer),
		Difficulty:    difficulty,
	}, nil
}

// generateDistractors collects exactly 3 distinct positive values, none
// equal to the answer. Tactics: small offsets (±1..5) and, for two-digit
// answers, digit transposition. The offset window widens every few failed
// draws so generation terminates even for tiny answers where the tactics
// keep colliding.
func generateDistractors(answer int) []int {
	distractors := make(map[int]bool, 3)

	// Transposition only applies to two-digit answers whose reversal differs
	s := strconv.Itoa(answer)
	if len(s) == 2 {
		reversed, _ := strconv.Atoi(reverseDigits(s))
		if reversed != answer && reversed > 0 {
			distractors[reversed] = true
		}
	}

	spread := 5
	for attempts := 0; len(distractors) < 3; attempts++ {
		if attempts > 0 && attempts%10 == 0 && spread < 25 {
			spread += 2
		}
		offset := rand.Intn(2*spread+1) - spread
		candidate := answer + offset
		if candidate != answer && candidate > 0 {
			distractors[candidate] = true
		}
	}

	out := make([]int, 0, 3)
	for d := range distractors {
		out = append(out, d)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func reverseDigits(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
