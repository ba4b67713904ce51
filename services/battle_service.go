package services

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// BattleAcceptWindow is how long a pending challenge stays acceptable.
	BattleAcceptWindow = 24 * time.Hour
	// BattleSettleGrace pads the overall deadline past the sum of round
	// timers so slow clients can still land their last answer.
	BattleSettleGrace = 5 * time.Minute

	DefaultWinnerReward      = 25
	DefaultConsolationReward = 10
)

var (
	validQuestionCounts  = map[int]bool{5: true, 10: true, 15: true}
	validTimePerQuestion = map[int]bool{15: true, 30: true, 60: true}
	arithmeticSubjects   = map[string]bool{"": true, "math": true, "arithmetic": true}
)

// ErrInvalidConfig rejects battle configs outside the allowed question
// counts and timers.
var ErrInvalidConfig = errors.New("invalid battle config")

// BattleService runs the quiz-battle lifecycle: create, accept, per-round
// answering, and idempotent settlement through the ledger.
type BattleService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Arithmetic QuestionGenerator
	Provider   QuestionGenerator // nil when no content provider is configured

	WinnerReward      int64
	ConsolationReward int64
}

func NewBattleService(db *gorm.DB, ledger *LedgerService, provider QuestionGenerator) *BattleService {
	return &BattleService{
		DB:                db,
		Ledger:            ledger,
		Arithmetic:        NewArithmeticGenerator(),
		Provider:          provider,
		WinnerReward:      envInt64("BATTLE_WINNER_MOLLARS", DefaultWinnerReward),
		ConsolationReward: envInt64("BATTLE_CONSOLATION_MOLLARS", DefaultConsolationReward),
	}
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// BattleConfig is the tunable part of a challenge.
type BattleConfig struct {
	Subject         string
	Grade           int
	QuestionCount   int
	TimePerQuestion int
}

// CreateBattle validates config and creates a pending challenge. It expires
// unaccepted after BattleAcceptWindow.
func (s *BattleService) CreateBattle(challengerType models.ParticipantType, challengerID string, opponentType models.ParticipantType, opponentID string, cfg BattleConfig) (*models.Battle, error) {
	if !validQuestionCounts[cfg.QuestionCount] || !validTimePerQuestion[cfg.TimePerQuestion] {
		return nil, ErrInvalidConfig
	}
	if challengerID == "" || opponentID == "" || challengerID == opponentID {
		return nil, ErrInvalidConfig
	}

	battle := &models.Battle{
		ID:              uuid.NewString(),
		ChallengerType:  challengerType,
		ChallengerID:    challengerID,
		OpponentType:    opponentType,
		OpponentID:      opponentID,
		Subject:         cfg.Subject,
		Grade:           cfg.Grade,
		QuestionCount:   cfg.QuestionCount,
		TimePerQuestion: cfg.TimePerQuestion,
		Status:          models.BattlePending,
		ExpiresAt:       time.Now().Add(BattleAcceptWindow),
	}
	if err := s.DB.Create(battle).Error; err != nil {
		return nil, err
	}
	return battle, nil
}

// Accept transitions pending → active and generates the first round. The
// transition is a conditional update, so a doubled accept call cannot create
// two first rounds.
func (s *BattleService) Accept(battleID, opponentID string) (*models.Battle, *models.BattleRound, error) {
	var battle models.Battle
	if err := s.DB.First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if battle.OpponentID != opponentID {
		return nil, nil, ErrNotFound
	}

	// Lazy expiry runs outside the accept transaction so the transition
	// survives the sentinel return.
	if battle.Status == models.BattlePending && time.Now().After(battle.ExpiresAt) {
		s.DB.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battleID, models.BattlePending).
			Update("status", models.BattleExpired)
		return nil, nil, ErrExpired
	}
	if battle.Status == models.BattleExpired {
		return nil, nil, ErrExpired
	}
	if battle.Status != models.BattlePending {
		return nil, nil, ErrAlreadyProcessed
	}

	var round *models.BattleRound
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battleID, models.BattlePending).
			Updates(map[string]interface{}{
				"status":      models.BattleActive,
				"accepted_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}
		battle.Status = models.BattleActive
		battle.AcceptedAt = &now

		r, err := s.generateRound(tx, &battle, 1)
		if err != nil {
			return err
		}
		round = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &battle, round, nil
}

// generateRound creates the round with the next sequence number, snapshotting
// the question. Standards seen in earlier rounds are excluded from provider
// generation; provider failures fall back to arithmetic so a round always
// materializes.
func (s *BattleService) generateRound(tx *gorm.DB, battle *models.Battle, seq int) (*models.BattleRound, error) {
	var priorStandards []string
	if err := tx.Model(&models.BattleRound{}).
		Where("battle_id = ? AND standard_code <> ''", battle.ID).
		Pluck("standard_code", &priorStandards).Error; err != nil {
		return nil, err
	}

	spec := models.QuestionSpec{
		Grade:            battle.Grade,
		Subject:          battle.Subject,
		ExcludeStandards: priorStandards,
	}

	var question *models.Question
	var err error
	if !arithmeticSubjects[battle.Subject] && s.Provider != nil {
		question, err = s.Provider.Generate(spec)
		if err != nil {
			log.Printf("Question provider failed for battle %s round %d, falling back to arithmetic: %v", battle.ID, seq, err)
			question = nil
		}
	}
	if question == nil {
		question, err = s.Arithmetic.Generate(spec)
		if err != nil {
			return nil, err
		}
	}

	snapshot, err := json.Marshal(question)
	if err != nil {
		return nil, err
	}

	round := &models.BattleRound{
		ID:            uuid.NewString(),
		BattleID:      battle.ID,
		Seq:           seq,
		QuestionJSON:  string(snapshot),
		CorrectAnswer: question.CorrectAnswer,
		StandardCode:  question.StandardCode,
	}
	if err := tx.Create(round).Error; err != nil {
		if isUniqueViolation(err) {
			// concurrent answerer already generated this round
			var existing models.BattleRound
			if ferr := tx.First(&existing, "battle_id = ? AND seq = ?", battle.ID, seq).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return round, nil
}

// AnswerResult is what SubmitAnswer reports back to the player.
type AnswerResult struct {
	Correct        bool `json:"correct"`
	BattleComplete bool `json:"battle_complete"`
	NextSeq        int  `json:"next_seq,omitempty"`
}

// SubmitAnswer records one participant's answer for a round. Fails with
// ErrRoundClosed when the per-round timer was exceeded or this participant
// already answered the round; correctness is an exact match against the
// snapshot's correct option. When both sides have answered, the next round
// is generated, or the battle completes after the last one.
func (s *BattleService) SubmitAnswer(battleID, participantID string, roundSeq int, answer string, elapsedMs int64) (*AnswerResult, error) {
	var battle models.Battle
	if err := s.DB.First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if battle.Status != models.BattleActive {
		return nil, ErrExpired
	}
	// Lazy completion past the overall deadline must commit even though the
	// answer is rejected, so it runs outside the answer transaction
	if deadline, ok := battleDeadline(&battle); ok && time.Now().After(deadline) {
		s.completeBattle(s.DB, &battle)
		return nil, ErrExpired
	}

	isChallenger := participantID == battle.ChallengerID
	if !isChallenger && participantID != battle.OpponentID {
		return nil, ErrNotFound
	}

	var result AnswerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var round models.BattleRound
		if err := tx.First(&round, "battle_id = ? AND seq = ?", battleID, roundSeq).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if elapsedMs < 0 || elapsedMs > int64(battle.TimePerQuestion)*1000 {
			return ErrRoundClosed
		}

		correct := answer == round.CorrectAnswer
		side := "opponent"
		if isChallenger {
			side = "challenger"
		}

		res := tx.Model(&models.BattleRound{}).
			Where("id = ? AND "+side+"_answer IS NULL", round.ID).
			Updates(map[string]interface{}{
				side + "_answer":     answer,
				side + "_latency_ms": elapsedMs,
				side + "_correct":    correct,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// already answered by this participant
			return ErrRoundClosed
		}

		if round.StandardCode != "" && participantType(&battle, isChallenger) == models.ParticipantChild {
			if err := bumpProgress(tx, participantID, round.StandardCode, correct); err != nil {
				return err
			}
		}

		// Re-read the row after the update: the pre-update snapshot misses
		// an answer the other side landed concurrently, and two last
		// answers deciding "not yet" would strand the battle
		var updated models.BattleRound
		if err := tx.First(&updated, "id = ?", round.ID).Error; err != nil {
			return err
		}
		bothAnswered := updated.ChallengerAnswer != nil && updated.OpponentAnswer != nil

		result.Correct = correct
		if bothAnswered {
			if roundSeq >= battle.QuestionCount {
				if err := s.completeBattle(tx, &battle); err != nil {
					return err
				}
				result.BattleComplete = true
			} else {
				if _, err := s.generateRound(tx, &battle, roundSeq+1); err != nil {
					return err
				}
				result.NextSeq = roundSeq + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func participantType(battle *models.Battle, isChallenger bool) models.ParticipantType {
	if isChallenger {
		return battle.ChallengerType
	}
	return battle.OpponentType
}

// battleDeadline is the overall cutoff for an active battle.
func battleDeadline(battle *models.Battle) (time.Time, bool) {
	if battle.AcceptedAt == nil {
		return time.Time{}, false
	}
	total := time.Duration(battle.QuestionCount*battle.TimePerQuestion) * time.Second
	return battle.AcceptedAt.Add(total + BattleSettleGrace), true
}

func (s *BattleService) completeBattle(tx *gorm.DB, battle *models.Battle) error {
	now := time.Now()
	res := tx.Model(&models.Battle{}).
		Where("id = ? AND status = ?", battle.ID, models.BattleActive).
		Updates(map[string]interface{}{
			"status":       models.BattleCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		battle.Status = models.BattleCompleted
		battle.CompletedAt = &now
	}
	return nil
}

func bumpProgress(tx *gorm.DB, childID, standardCode string, correct bool) error {
	var progress models.LearningProgress
	err := tx.Where("child_id = ? AND standard_code = ?", childID, standardCode).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		progress = models.LearningProgress{
			ID:           uuid.NewString(),
			ChildID:      childID,
			StandardCode: standardCode,
		}
		if err := tx.Create(&progress).Error; err != nil && !isUniqueViolation(err) {
			return err
		}
	} else if err != nil {
		return err
	}

	updates := map[string]interface{}{"attempts": gorm.Expr("attempts + 1")}
	if correct {
		updates["correct"] = gorm.Expr("correct + 1")
	}
	return tx.Model(&models.LearningProgress{}).
		Where("child_id = ? AND standard_code = ?", childID, standardCode).
		Updates(updates).Error
}

// SettleResult reports the settlement outcome.
type SettleResult struct {
	BattleID        string           `json:"battle_id"`
	Draw            bool             `json:"draw"`
	WinnerID        *string          `json:"winner_id,omitempty"`
	ChallengerScore ParticipantScore `json:"challenger_score"`
	OpponentScore   ParticipantScore `json:"opponent_score"`
	Payouts         map[string]int64 `json:"payouts"` // participant ID → Mollars
}

// ParticipantScore is one side's tally.
type ParticipantScore struct {
	Correct        int   `json:"correct"`
	TotalLatencyMs int64 `json:"total_latency_ms"`
}

// Settle scores a completed battle and pays the winner (or both, reduced, on
// a draw) through the ledger, keyed by battle ID so re-settling can never
// double-pay. An active battle past its overall deadline completes lazily
// here; unanswered rounds count as incorrect at full latency.
func (s *BattleService) Settle(battleID string) (*SettleResult, error) {
	var precheck models.Battle
	if err := s.DB.First(&precheck, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	switch precheck.Status {
	case models.BattlePending:
		// Expire lazily outside the settlement transaction; the sentinel
		// return below must not roll the transition back
		if time.Now().After(precheck.ExpiresAt) {
			s.DB.Model(&models.Battle{}).
				Where("id = ? AND status = ?", battleID, models.BattlePending).
				Update("status", models.BattleExpired)
		}
		return nil, ErrExpired
	case models.BattleExpired:
		return nil, ErrExpired
	}

	var result *SettleResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var battle models.Battle
		if err := tx.First(&battle, "id = ?", battleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		switch battle.Status {
		case models.BattlePending, models.BattleExpired:
			return ErrExpired
		case models.BattleActive:
			deadline, ok := battleDeadline(&battle)
			if !ok || time.Now().Before(deadline) {
				return ErrNotCompleted
			}
			if err := s.completeBattle(tx, &battle); err != nil {
				return err
			}
		}

		r, err := s.scoreBattle(tx, &battle)
		if err != nil {
			return err
		}
		result = r

		if battle.SettledAt != nil {
			// already settled, idempotent no-op: report the stored outcome
			result.WinnerID = battle.WinnerID
			result.Draw = battle.WinnerID == nil
			result.Payouts = map[string]int64{}
			return nil
		}

		now := time.Now()
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND settled_at IS NULL", battleID).
			Updates(map[string]interface{}{
				"settled_at": &now,
				"winner_id":  result.WinnerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// concurrent settle won; the ledger dedup key makes any payout
			// attempt below a no-op anyway, but skip the work
			result.Payouts = map[string]int64{}
			return nil
		}

		for participantID, amount := range result.Payouts {
			_, err := s.Ledger.AppendTx(tx, participantID, amount, models.ReasonBattleReward, battleID)
			if err != nil && !errors.Is(err, ErrDuplicateReference) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scoreBattle tallies both sides and decides payouts. Winner by correct
// count, then by lower total latency; equal on both means a draw with a
// consolation payout to each side. Only child participants are payable.
func (s *BattleService) scoreBattle(tx *gorm.DB, battle *models.Battle) (*SettleResult, error) {
	var rounds []models.BattleRound
	if err := tx.Where("battle_id = ?", battle.ID).Order("seq ASC").Find(&rounds).Error; err != nil {
		return nil, err
	}

	fullLatency := int64(battle.TimePerQuestion) * 1000
	var challenger, opponent ParticipantScore

	for _, r := range rounds {
		tallySide(&challenger, r.ChallengerCorrect, r.ChallengerLatencyMs, fullLatency)
		tallySide(&opponent, r.OpponentCorrect, r.OpponentLatencyMs, fullLatency)
	}
	// Rounds that never got generated (deadline hit mid-battle) score as
	// missed for both sides
	for i := len(rounds); i < battle.QuestionCount; i++ {
		challenger.TotalLatencyMs += fullLatency
		opponent.TotalLatencyMs += fullLatency
	}

	result := &SettleResult{
		BattleID:        battle.ID,
		ChallengerScore: challenger,
		OpponentScore:   opponent,
		Payouts:         map[string]int64{},
	}

	switch {
	case challenger.Correct > opponent.Correct,
		challenger.Correct == opponent.Correct && challenger.TotalLatencyMs < opponent.TotalLatencyMs:
		result.WinnerID = &battle.ChallengerID
		if battle.ChallengerType == models.ParticipantChild {
			result.Payouts[battle.ChallengerID] = s.WinnerReward
		}
	case opponent.Correct > challenger.Correct,
		challenger.Correct == opponent.Correct && opponent.TotalLatencyMs < challenger.TotalLatencyMs:
		result.WinnerID = &battle.OpponentID
		if battle.OpponentType == models.ParticipantChild {
			result.Payouts[battle.OpponentID] = s.WinnerReward
		}
	default:
		result.Draw = true
		if battle.ChallengerType == models.ParticipantChild {
			result.Payouts[battle.ChallengerID] = s.ConsolationReward
		}
		if battle.OpponentType == models.ParticipantChild {
			result.Payouts[battle.OpponentID] = s.ConsolationReward
		}
	}
	return result, nil
}

func tallySide(score *ParticipantScore, correct *bool, latency *int64, fullLatency int64) {
	if correct != nil && *correct {
		score.Correct++
	}
	if latency != nil {
		score.TotalLatencyMs += *latency
	} else {
		score.TotalLatencyMs += fullLatency
	}
}

// --- HTTP handlers ---

// CreateBattleEndpoint creates a challenge.
func (s *BattleService) CreateBattleEndpoint(c *fiber.Ctx) error {
	var req struct {
		ChallengerType  string `json:"challenger_type" validate:"required,oneof=child parent"`
		ChallengerID    string `json:"challenger_id" validate:"required,uuid"`
		OpponentType    string `json:"opponent_type" validate:"required,oneof=child parent"`
		OpponentID      string `json:"opponent_id" validate:"required,uuid"`
		Subject         string `json:"subject"`
		Grade           int    `json:"grade"`
		QuestionCount   int    `json:"question_count" validate:"required,oneof=5 10 15"`
		TimePerQuestion int    `json:"time_per_question" validate:"required,oneof=15 30 60"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	battle, err := s.CreateBattle(
		models.ParticipantType(req.ChallengerType), req.ChallengerID,
		models.ParticipantType(req.OpponentType), req.OpponentID,
		BattleConfig{
			Subject:         req.Subject,
			Grade:           req.Grade,
			QuestionCount:   req.QuestionCount,
			TimePerQuestion: req.TimePerQuestion,
		})
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("DB Error creating battle: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create battle"})
	}
	return c.Status(fiber.StatusCreated).JSON(battle)
}

// AcceptBattleEndpoint activates a pending challenge for the opponent.
func (s *BattleService) AcceptBattleEndpoint(c *fiber.Ctx) error {
	battleID := c.Params("id")
	var req struct {
		OpponentID string `json:"opponent_id" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	battle, round, err := s.Accept(battleID, req.OpponentID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"battle": battle,
		"round":  roundView(round),
	})
}

// SubmitAnswerEndpoint records an answer for a round.
func (s *BattleService) SubmitAnswerEndpoint(c *fiber.Ctx) error {
	battleID := c.Params("id")
	var req struct {
		ParticipantID string `json:"participant_id" validate:"required"`
		RoundSeq      int    `json:"round_seq" validate:"required,min=1"`
		Answer        string `json:"answer" validate:"required"`
		ElapsedMs     int64  `json:"elapsed_ms"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := s.SubmitAnswer(battleID, req.ParticipantID, req.RoundSeq, req.Answer, req.ElapsedMs)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(result)
}

// SettleBattleEndpoint settles a completed battle (idempotent).
func (s *BattleService) SettleBattleEndpoint(c *fiber.Ctx) error {
	result, err := s.Settle(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(result)
}

// GetBattleEndpoint returns battle state with the current round's question
// (correct answer withheld).
func (s *BattleService) GetBattleEndpoint(c *fiber.Ctx) error {
	battleID := c.Params("id")

	var battle models.Battle
	if err := s.DB.First(&battle, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrorResponse(c, ErrNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	// Lazy expiry on read
	if battle.Status == models.BattlePending && time.Now().After(battle.ExpiresAt) {
		s.DB.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battleID, models.BattlePending).
			Update("status", models.BattleExpired)
		battle.Status = models.BattleExpired
	}
	if battle.Status == models.BattleActive {
		if deadline, ok := battleDeadline(&battle); ok && time.Now().After(deadline) {
			s.completeBattle(s.DB, &battle)
		}
	}

	var rounds []models.BattleRound
	s.DB.Where("battle_id = ?", battleID).Order("seq ASC").Find(&rounds)

	resp := fiber.Map{"battle": battle, "rounds": rounds}
	if n := len(rounds); n > 0 && battle.Status == models.BattleActive {
		resp["current_round"] = roundView(&rounds[n-1])
	}
	return c.JSON(resp)
}

// roundView exposes a round's question without its correct answer.
func roundView(round *models.BattleRound) fiber.Map {
	if round == nil {
		return nil
	}
	var question models.Question
	if err := json.Unmarshal([]byte(round.QuestionJSON), &question); err != nil {
		return fiber.Map{"seq": round.Seq}
	}
	return fiber.Map{
		"seq":     round.Seq,
		"prompt":  question.Prompt,
		"options": question.Options,
	}
}
