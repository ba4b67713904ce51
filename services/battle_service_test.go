package services

import (
	"testing"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator returns a canned question (or error), standing in for the
// content provider.
type stubGenerator struct {
	question *models.Question
	err      error
	calls    int
}

func (g *stubGenerator) Generate(spec models.QuestionSpec) (*models.Question, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	q := *g.question
	q.ID = uuid.NewString()
	return &q, nil
}

func newBattleEnv(t *testing.T, provider QuestionGenerator) (*BattleService, *LedgerService, *models.Child, *models.Child) {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	svc := &BattleService{
		DB:                db,
		Ledger:            ledger,
		Arithmetic:        NewArithmeticGenerator(),
		Provider:          provider,
		WinnerReward:      DefaultWinnerReward,
		ConsolationReward: DefaultConsolationReward,
	}

	family := seedFamily(t, db, "Summers")
	challenger := seedChild(t, db, family.ID, "Max")
	opponent := seedChild(t, db, family.ID, "Mia")
	return svc, ledger, challenger, opponent
}

func defaultConfig() BattleConfig {
	return BattleConfig{Subject: "math", Grade: 3, QuestionCount: 5, TimePerQuestion: 30}
}

func currentRound(t *testing.T, svc *BattleService, battleID string, seq int) *models.BattleRound {
	t.Helper()
	var round models.BattleRound
	require.NoError(t, svc.DB.First(&round, "battle_id = ? AND seq = ?", battleID, seq).Error)
	return &round
}

func TestCreateBattleValidatesConfig(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	cases := []BattleConfig{
		{QuestionCount: 7, TimePerQuestion: 30},
		{QuestionCount: 5, TimePerQuestion: 45},
		{QuestionCount: 0, TimePerQuestion: 0},
	}
	for _, cfg := range cases {
		_, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	// Self-battles are rejected too
	_, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, challenger.ID, defaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	assert.Equal(t, models.BattlePending, battle.Status)
	assert.True(t, battle.ExpiresAt.After(time.Now()))
}

func TestAcceptGuards(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)

	// Only the named opponent may accept
	_, _, err = svc.Accept(battle.ID, challenger.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	accepted, round, err := svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BattleActive, accepted.Status)
	require.NotNil(t, round)
	assert.Equal(t, 1, round.Seq)

	// Double accept cannot create a second first round
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	var count int64
	require.NoError(t, svc.DB.Model(&models.BattleRound{}).
		Where("battle_id = ? AND seq = ?", battle.ID, 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAcceptAfterWindowExpires(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)

	backdate(t, svc.DB, &models.Battle{}, battle.ID, "expires_at", time.Minute)

	_, _, err = svc.Accept(battle.ID, opponent.ID)
	assert.ErrorIs(t, err, ErrExpired)

	var stored models.Battle
	require.NoError(t, svc.DB.First(&stored, "id = ?", battle.ID).Error)
	assert.Equal(t, models.BattleExpired, stored.Status)

	// Expired challenges never settle or pay
	_, err = svc.Settle(battle.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

// playBattle answers every round: the challenger per challengerCorrect, the
// opponent always wrong. Latencies are fixed so outcomes are deterministic.
func playBattle(t *testing.T, svc *BattleService, battleID, challengerID, opponentID string, questionCount int, challengerCorrect bool) {
	t.Helper()
	for seq := 1; seq <= questionCount; seq++ {
		round := currentRound(t, svc, battleID, seq)

		answer := round.CorrectAnswer
		if !challengerCorrect {
			answer = "-1"
		}
		res, err := svc.SubmitAnswer(battleID, challengerID, seq, answer, 4000)
		require.NoError(t, err)
		assert.Equal(t, challengerCorrect, res.Correct)

		res, err = svc.SubmitAnswer(battleID, opponentID, seq, "-1", 5000)
		require.NoError(t, err)
		assert.False(t, res.Correct)

		if seq < questionCount {
			assert.Equal(t, seq+1, res.NextSeq)
		} else {
			assert.True(t, res.BattleComplete)
		}
	}
}

func TestFullBattleWinnerPaidOnce(t *testing.T) {
	svc, ledger, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)

	playBattle(t, svc, battle.ID, challenger.ID, opponent.ID, battle.QuestionCount, true)

	result, err := svc.Settle(battle.ID)
	require.NoError(t, err)
	assert.False(t, result.Draw)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, challenger.ID, *result.WinnerID)
	assert.Equal(t, battle.QuestionCount, result.ChallengerScore.Correct)
	assert.Equal(t, 0, result.OpponentScore.Correct)
	assert.Equal(t, map[string]int64{challenger.ID: DefaultWinnerReward}, result.Payouts)

	winnerBalance, err := ledger.Balance(challenger.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultWinnerReward), winnerBalance)

	loserBalance, err := ledger.Balance(opponent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), loserBalance)

	// Re-settling reports the same outcome and pays nothing more
	again, err := svc.Settle(battle.ID)
	require.NoError(t, err)
	assert.Equal(t, challenger.ID, *again.WinnerID)
	assert.Empty(t, again.Payouts)

	winnerBalance, err = ledger.Balance(challenger.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultWinnerReward), winnerBalance)
}

func TestDrawPaysConsolationToBoth(t *testing.T) {
	svc, ledger, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)

	// Both answer every round correctly with identical latency
	for seq := 1; seq <= battle.QuestionCount; seq++ {
		round := currentRound(t, svc, battle.ID, seq)
		_, err := svc.SubmitAnswer(battle.ID, challenger.ID, seq, round.CorrectAnswer, 3000)
		require.NoError(t, err)
		_, err = svc.SubmitAnswer(battle.ID, opponent.ID, seq, round.CorrectAnswer, 3000)
		require.NoError(t, err)
	}

	result, err := svc.Settle(battle.ID)
	require.NoError(t, err)
	assert.True(t, result.Draw)
	assert.Nil(t, result.WinnerID)
	assert.Equal(t, map[string]int64{
		challenger.ID: DefaultConsolationReward,
		opponent.ID:   DefaultConsolationReward,
	}, result.Payouts)

	for _, childID := range []string{challenger.ID, opponent.ID} {
		balance, err := ledger.Balance(childID)
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultConsolationReward), balance)
	}
}

func TestTieBrokenByLatency(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)

	// Equal correct counts; the opponent is consistently faster
	for seq := 1; seq <= battle.QuestionCount; seq++ {
		round := currentRound(t, svc, battle.ID, seq)
		_, err := svc.SubmitAnswer(battle.ID, challenger.ID, seq, round.CorrectAnswer, 9000)
		require.NoError(t, err)
		_, err = svc.SubmitAnswer(battle.ID, opponent.ID, seq, round.CorrectAnswer, 2000)
		require.NoError(t, err)
	}

	result, err := svc.Settle(battle.ID)
	require.NoError(t, err)
	assert.False(t, result.Draw)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, opponent.ID, *result.WinnerID)
}

func TestParentParticipantsAreNeverPaid(t *testing.T) {
	svc, ledger, challenger, _ := newBattleEnv(t, nil)
	parent := seedParent(t, svc.DB, challenger.FamilyID, "SUMM0001")

	battle, err := svc.CreateBattle(models.ParticipantParent, parent.ID, models.ParticipantChild, challenger.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, challenger.ID)
	require.NoError(t, err)

	// Parent (challenger side) wins every round
	playBattle(t, svc, battle.ID, parent.ID, challenger.ID, battle.QuestionCount, true)

	result, err := svc.Settle(battle.ID)
	require.NoError(t, err)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, parent.ID, *result.WinnerID)
	assert.Empty(t, result.Payouts)

	balance, err := ledger.Balance(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRoundGuards(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	round := currentRound(t, svc, battle.ID, 1)

	// Only the two participants may answer
	_, err = svc.SubmitAnswer(battle.ID, uuid.NewString(), 1, round.CorrectAnswer, 1000)
	assert.ErrorIs(t, err, ErrNotFound)

	// Over-timer submissions are rejected
	overTimer := int64(battle.TimePerQuestion)*1000 + 1
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, round.CorrectAnswer, overTimer)
	assert.ErrorIs(t, err, ErrRoundClosed)
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, round.CorrectAnswer, -1)
	assert.ErrorIs(t, err, ErrRoundClosed)

	// First answer wins the slot; a second from the same side is rejected
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, round.CorrectAnswer, 1000)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, "-1", 1000)
	assert.ErrorIs(t, err, ErrRoundClosed)

	// The recorded answer is the first one
	stored := currentRound(t, svc, battle.ID, 1)
	require.NotNil(t, stored.ChallengerAnswer)
	assert.Equal(t, round.CorrectAnswer, *stored.ChallengerAnswer)
}

func TestNextRoundWaitsForBothAnswers(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	round := currentRound(t, svc, battle.ID, 1)

	// One answer in: the round stays open and no next round exists yet
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, round.CorrectAnswer, 1000)
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.DB.Model(&models.BattleRound{}).
		Where("battle_id = ? AND seq = ?", battle.ID, 2).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// The completing answer advances the battle even though the row it read
	// before updating predates its own write
	_, err = svc.SubmitAnswer(battle.ID, opponent.ID, 1, "-1", 1500)
	require.NoError(t, err)

	require.NoError(t, svc.DB.Model(&models.BattleRound{}).
		Where("battle_id = ? AND seq = ?", battle.ID, 2).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var stored models.Battle
	require.NoError(t, svc.DB.First(&stored, "id = ?", battle.ID).Error)
	assert.Equal(t, models.BattleActive, stored.Status)
}

func TestLateAnswerCompletesBattle(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	round := currentRound(t, svc, battle.ID, 1)

	total := time.Duration(battle.QuestionCount*battle.TimePerQuestion) * time.Second
	backdate(t, svc.DB, &models.Battle{}, battle.ID, "accepted_at", total+BattleSettleGrace+time.Minute)

	// The answer is rejected, but the completion it triggered must stick
	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, round.CorrectAnswer, 1000)
	assert.ErrorIs(t, err, ErrExpired)

	var stored models.Battle
	require.NoError(t, svc.DB.First(&stored, "id = ?", battle.ID).Error)
	assert.Equal(t, models.BattleCompleted, stored.Status)
}

func TestSettleActiveBattleBeforeDeadline(t *testing.T) {
	svc, _, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)

	_, err = svc.Settle(battle.ID)
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestAbandonedBattleSettlesAfterDeadline(t *testing.T) {
	svc, ledger, challenger, opponent := newBattleEnv(t, nil)

	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, defaultConfig())
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)

	// Nobody answers; push the acceptance far enough back that the overall
	// deadline has passed
	total := time.Duration(battle.QuestionCount*battle.TimePerQuestion) * time.Second
	backdate(t, svc.DB, &models.Battle{}, battle.ID, "accepted_at", total+BattleSettleGrace+time.Minute)

	result, err := svc.Settle(battle.ID)
	require.NoError(t, err)

	// Zero correct on both sides with identical forfeited latency is a draw
	assert.True(t, result.Draw)
	assert.Equal(t, 0, result.ChallengerScore.Correct)
	assert.Equal(t, result.ChallengerScore.TotalLatencyMs, result.OpponentScore.TotalLatencyMs)

	for _, childID := range []string{challenger.ID, opponent.ID} {
		balance, err := ledger.Balance(childID)
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultConsolationReward), balance)
	}

	var stored models.Battle
	require.NoError(t, svc.DB.First(&stored, "id = ?", battle.ID).Error)
	assert.Equal(t, models.BattleCompleted, stored.Status)
	assert.NotNil(t, stored.SettledAt)
}

func TestProviderRoundsTrackProgress(t *testing.T) {
	stub := &stubGenerator{question: &models.Question{
		Prompt:        "Which word is spelled correctly?",
		Options:       []string{"recieve", "receive", "receeve", "riceive"},
		CorrectAnswer: "receive",
		StandardCode:  "L.3.2",
		Difficulty:    "medium",
	}}
	svc, _, challenger, opponent := newBattleEnv(t, stub)

	cfg := defaultConfig()
	cfg.Subject = "spelling"
	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, cfg)
	require.NoError(t, err)
	_, _, err = svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	round := currentRound(t, svc, battle.ID, 1)
	assert.Equal(t, "L.3.2", round.StandardCode)

	_, err = svc.SubmitAnswer(battle.ID, challenger.ID, 1, "receive", 2000)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(battle.ID, opponent.ID, 1, "recieve", 2500)
	require.NoError(t, err)

	var challengerProgress models.LearningProgress
	require.NoError(t, svc.DB.First(&challengerProgress, "child_id = ? AND standard_code = ?", challenger.ID, "L.3.2").Error)
	assert.Equal(t, int64(1), challengerProgress.Attempts)
	assert.Equal(t, int64(1), challengerProgress.Correct)

	var opponentProgress models.LearningProgress
	require.NoError(t, svc.DB.First(&opponentProgress, "child_id = ? AND standard_code = ?", opponent.ID, "L.3.2").Error)
	assert.Equal(t, int64(1), opponentProgress.Attempts)
	assert.Equal(t, int64(0), opponentProgress.Correct)
}

func TestProviderFailureFallsBackToArithmetic(t *testing.T) {
	stub := &stubGenerator{err: assert.AnError}
	svc, _, challenger, opponent := newBattleEnv(t, stub)

	cfg := defaultConfig()
	cfg.Subject = "spelling"
	battle, err := svc.CreateBattle(models.ParticipantChild, challenger.ID, models.ParticipantChild, opponent.ID, cfg)
	require.NoError(t, err)

	_, round, err := svc.Accept(battle.ID, opponent.ID)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Equal(t, 1, stub.calls)
	assert.Empty(t, round.StandardCode)
}
