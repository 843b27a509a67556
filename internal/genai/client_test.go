package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func quizJSON(t *testing.T) string {
	t.Helper()
	quiz := Quiz{
		Title: "Go basics",
		Questions: []Question{
			{Prompt: "What does go vet do?", Options: []string{"formats", "reports suspicious code"}, Answer: 1},
		},
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	return string(data)
}

func candidateResponse(text string) geminiGenerateContentResponse {
	return geminiGenerateContentResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}},
	}
}

func TestGenerateQuizDecodesCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-credential" {
			t.Errorf("credential query param = %q", got)
		}
		_ = json.NewEncoder(w).Encode(candidateResponse(quizJSON(t)))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	quiz, err := c.GenerateQuiz(context.Background(), "test-credential", "gemini-2.5-flash", QuizRequest{Topic: "go", QuestionCount: 1})
	if err != nil {
		t.Fatalf("GenerateQuiz returned error: %v", err)
	}
	if quiz.Title != "Go basics" || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
}

func TestGenerateQuizClassifiesStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{
			name:   "too many requests",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"slow down"}}`,
			want:   KindRateLimited,
		},
		{
			name:   "resource exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			want:   KindQuota,
		},
		{
			name:   "forbidden quota",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"billing disabled"}}`,
			want:   KindQuota,
		},
		{
			name:   "gateway timeout",
			status: http.StatusGatewayTimeout,
			body:   `{"error":{"code":504,"message":"deadline"}}`,
			want:   KindTimeout,
		},
		{
			name:   "service unavailable",
			status: http.StatusServiceUnavailable,
			body:   "upstream overloaded",
			want:   KindUnavailable,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"invalid argument"}}`,
			want:   KindOther,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL})
			_, err := c.GenerateQuiz(context.Background(), "k", "m", QuizRequest{Topic: "go"})
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if ue.Kind != tc.want {
				t.Fatalf("kind = %q, want %q", ue.Kind, tc.want)
			}
		})
	}
}

func TestGenerateQuizInvalidStructure(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty payload", text: `{}`},
		{name: "no questions", text: `{"title":"t","questions":[]}`},
		{name: "one option", text: `{"title":"t","questions":[{"prompt":"p","options":["a"],"answer":0}]}`},
		{name: "answer out of range", text: `{"title":"t","questions":[{"prompt":"p","options":["a","b"],"answer":5}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(candidateResponse(tc.text))
			}))
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL})
			_, err := c.GenerateQuiz(context.Background(), "k", "m", QuizRequest{Topic: "go"})
			if KindOf(err) != KindInvalidContent {
				t.Fatalf("kind = %q, want invalid_content (err=%v)", KindOf(err), err)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(0); got != 600 {
		t.Fatalf("EstimateTokens(0) = %d, want 600", got)
	}
	if got := EstimateTokens(10); got != 1200 {
		t.Fatalf("EstimateTokens(10) = %d, want 1200", got)
	}
	if got := EstimateTokens(1000); got != 6000 {
		t.Fatalf("EstimateTokens(1000) = %d, want 6000", got)
	}
}
