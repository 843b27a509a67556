package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"server/internal/domain"
	"server/internal/genai"
)

type stubGenerator struct {
	quiz *genai.Quiz
	err  error
	got  genai.QuizRequest
}

func (s *stubGenerator) Invoke(_ context.Context, req genai.QuizRequest) (*genai.Quiz, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.quiz, nil
}

func TestQuizzesGenerateSuccess(t *testing.T) {
	app, _, _ := newTestApp(t)
	gen := &stubGenerator{quiz: &genai.Quiz{
		Title: "Go Basics",
		Questions: []genai.Question{
			{Prompt: "What is a goroutine?", Options: []string{"a thread", "a lightweight routine"}, Answer: 1},
		},
	}}
	app.Generator = gen

	rr := doJSON(t, app.QuizzesGenerate, http.MethodPost, "/v1/quizzes/generate", "user-1",
		`{"topic":"go basics","question_count":3,"difficulty":"easy"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if gen.got.Topic != "go basics" || gen.got.QuestionCount != 3 || gen.got.Difficulty != "easy" {
		t.Fatalf("generator request = %+v", gen.got)
	}

	var resp quizGenerateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Quiz == nil || resp.Quiz.Title != "Go Basics" {
		t.Fatalf("quiz = %+v", resp.Quiz)
	}
}

func TestQuizzesGenerateDefaults(t *testing.T) {
	app, _, _ := newTestApp(t)
	gen := &stubGenerator{quiz: &genai.Quiz{Title: "t", Questions: []genai.Question{{Prompt: "p", Options: []string{"a", "b"}}}}}
	app.Generator = gen

	rr := doJSON(t, app.QuizzesGenerate, http.MethodPost, "/v1/quizzes/generate", "user-1", `{"topic":"history"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if gen.got.Difficulty != "medium" || gen.got.QuestionCount != 5 {
		t.Fatalf("defaults not applied: %+v", gen.got)
	}
}

func TestQuizzesGenerateValidation(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.Generator = &stubGenerator{}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing topic", `{"question_count":5}`, http.StatusBadRequest},
		{"count too high", `{"topic":"x","question_count":51}`, http.StatusBadRequest},
		{"bad difficulty", `{"topic":"x","difficulty":"impossible"}`, http.StatusBadRequest},
		{"malformed", `not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, app.QuizzesGenerate, http.MethodPost, "/v1/quizzes/generate", "user-1", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestQuizzesGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{
			name:     "timeout category",
			err:      &genai.GenerationError{Kind: genai.KindTimeout, Category: genai.CategoryTimeout, Attempts: 3},
			want:     http.StatusGatewayTimeout,
			wantCode: "generation_timeout",
		},
		{
			name:     "quota category",
			err:      &genai.GenerationError{Kind: genai.KindQuota, Category: genai.CategoryQuota, Attempts: 3},
			want:     http.StatusServiceUnavailable,
			wantCode: "generation_capacity",
		},
		{
			name:     "content category",
			err:      &genai.GenerationError{Kind: genai.KindInvalidContent, Category: genai.CategoryContent, Attempts: 3},
			want:     http.StatusBadGateway,
			wantCode: "generation_failed",
		},
		{
			name:     "no credentials",
			err:      domain.ErrNoCredentials,
			want:     http.StatusServiceUnavailable,
			wantCode: "no_credentials",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, _, _ := newTestApp(t)
			app.Generator = &stubGenerator{err: tc.err}

			rr := doJSON(t, app.QuizzesGenerate, http.MethodPost, "/v1/quizzes/generate", "user-1", `{"topic":"x"}`)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["code"] != tc.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tc.wantCode)
			}
		})
	}
}
