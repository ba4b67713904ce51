package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
)

// ProviderGenerator delegates question authorship to the external content
// provider and validates the payload before anything reaches a player. A
// malformed response is ErrInvalidContent; callers retry or fall back to
// the arithmetic strategy.
type ProviderGenerator struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewProviderGenerator(baseURL, token string) *ProviderGenerator {
	return &ProviderGenerator{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type providerQuestion struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	StandardCode  string   `json:"standard_code"`
	Difficulty    string   `json:"difficulty_level"`
	Explanation   string   `json:"explanation"`
}

type providerResponse struct {
	Questions []providerQuestion `json:"questions"`
}

func (g *ProviderGenerator) Generate(spec models.QuestionSpec) (*models.Question, error) {
	reqBody := map[string]interface{}{
		"state":             spec.State,
		"grade":             spec.Grade,
		"subject":           spec.Subject,
		"difficulty":        spec.Difficulty,
		"count":             1,
		"exclude_standards": spec.ExcludeStandards,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/generate-question", g.BaseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("Question provider returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("question provider failed: %d", resp.StatusCode)
	}

	var out providerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, ErrInvalidContent
	}
	if len(out.Questions) == 0 {
		return nil, ErrInvalidContent
	}

	q := out.Questions[0]
	if err := validateProviderQuestion(q); err != nil {
		return nil, err
	}

	return &models.Question{
		ID:            uuid.NewString(),
		Prompt:        q.QuestionText,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		StandardCode:  q.StandardCode,
		Difficulty:    q.Difficulty,
		Explanation:   q.Explanation,
	}, nil
}

// validateProviderQuestion enforces the playable-question contract: exactly
// 4 unique options, the correct answer among them, a non-empty standard
// code.
func validateProviderQuestion(q providerQuestion) error {
	if q.QuestionText == "" || q.StandardCode == "" {
		return ErrInvalidContent
	}
	if len(q.Options) != 4 {
		return ErrInvalidContent
	}

	seen := make(map[string]bool, 4)
	correctPresent := false
	for _, opt := range q.Options {
		if opt == "" || seen[opt] {
			return ErrInvalidContent
		}
		seen[opt] = true
		if opt == q.CorrectAnswer {
			correctPresent = true
		}
	}
	if !correctPresent {
		return ErrInvalidContent
	}
	return nil
}
