package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-question", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 1, req["count"])

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProviderGeneratesValidatedQuestion(t *testing.T) {
	server := providerStub(t, http.StatusOK, `{
		"questions": [{
			"question_text": "Which word is spelled correctly?",
			"options": ["recieve", "receive", "receeve", "riceive"],
			"correct_answer": "receive",
			"standard_code": "L.3.2",
			"difficulty_level": "medium",
			"explanation": "i before e except after c"
		}]
	}`)

	gen := NewProviderGenerator(server.URL, "test-token")
	q, err := gen.Generate(models.QuestionSpec{Grade: 3, Subject: "spelling"})
	require.NoError(t, err)

	assert.Equal(t, "Which word is spelled correctly?", q.Prompt)
	assert.Equal(t, "receive", q.CorrectAnswer)
	assert.Equal(t, "L.3.2", q.StandardCode)
	assert.Len(t, q.Options, 4)
}

func TestProviderRejectsMalformedContent(t *testing.T) {
	cases := map[string]string{
		"empty questions":   `{"questions": []}`,
		"not json":          `<html>rate limited</html>`,
		"three options":     `{"questions":[{"question_text":"q","options":["a","b","c"],"correct_answer":"a","standard_code":"X.1"}]}`,
		"duplicate options": `{"questions":[{"question_text":"q","options":["a","a","b","c"],"correct_answer":"a","standard_code":"X.1"}]}`,
		"correct missing":   `{"questions":[{"question_text":"q","options":["a","b","c","d"],"correct_answer":"e","standard_code":"X.1"}]}`,
		"no standard code":  `{"questions":[{"question_text":"q","options":["a","b","c","d"],"correct_answer":"a","standard_code":""}]}`,
		"empty option":      `{"questions":[{"question_text":"q","options":["a","b","c",""],"correct_answer":"a","standard_code":"X.1"}]}`,
		"empty question":    `{"questions":[{"question_text":"","options":["a","b","c","d"],"correct_answer":"a","standard_code":"X.1"}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := providerStub(t, http.StatusOK, body)
			gen := NewProviderGenerator(server.URL, "")
			_, err := gen.Generate(models.QuestionSpec{Grade: 3, Subject: "spelling"})
			assert.ErrorIs(t, err, ErrInvalidContent)
		})
	}
}

func TestProviderNon200IsAnError(t *testing.T) {
	server := providerStub(t, http.StatusBadGateway, `{"error":"upstream"}`)
	gen := NewProviderGenerator(server.URL, "")

	_, err := gen.Generate(models.QuestionSpec{Grade: 3, Subject: "spelling"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidContent)
}

func TestQuestionServiceFallsBackToArithmetic(t *testing.T) {
	server := providerStub(t, http.StatusInternalServerError, `boom`)
	svc := NewQuestionService(NewProviderGenerator(server.URL, ""))

	q, err := svc.Generate(models.QuestionSpec{Grade: 3, Subject: "spelling"})
	require.NoError(t, err)
	assert.Contains(t, q.Prompt, "×")
}
