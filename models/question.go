package models

// Question is an ephemeral multiple-choice question: generated per round or
// preview request, persisted only as an immutable snapshot inside a
// BattleRound.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"` // exactly 4, unique, includes the correct answer
	CorrectAnswer string   `json:"correct_answer"`
	StandardCode  string   `json:"standard_code,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

// QuestionSpec describes what to generate.
type QuestionSpec struct {
	State            string   `json:"state,omitempty"`
	Grade            int      `json:"grade"`
	Subject          string   `json:"subject"`
	Difficulty       string   `json:"difficulty,omitempty"`
	ExcludeStandards []string `json:"exclude_standards,omitempty"`
}
