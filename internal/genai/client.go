package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// Client is a thin facade over the Gemini generateContent API. Credentials
// and the model tier are supplied per call so the resilience wrapper can
// rotate keys and fall back to a cheaper model between attempts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// QuizRequest describes the quiz to generate.
type QuizRequest struct {
	Topic         string
	Difficulty    string
	QuestionCount int
	Locale        string
	RequestID     string
}

// Quiz is the normalized output of a generation call.
type Quiz struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question is one quiz item.
type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Validate checks the structural requirements of a generated quiz. Failures
// are retryable up to the attempt budget without credential rotation.
func (q *Quiz) Validate() error {
	if q == nil || strings.TrimSpace(q.Title) == "" {
		return &UpstreamError{Kind: KindInvalidContent, Message: "missing quiz title"}
	}
	if len(q.Questions) == 0 {
		return &UpstreamError{Kind: KindInvalidContent, Message: "quiz has no questions"}
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Prompt) == "" {
			return &UpstreamError{Kind: KindInvalidContent, Message: fmt.Sprintf("question %d has no prompt", i+1)}
		}
		if len(question.Options) < 2 {
			return &UpstreamError{Kind: KindInvalidContent, Message: fmt.Sprintf("question %d needs at least two options", i+1)}
		}
		if question.Answer < 0 || question.Answer >= len(question.Options) {
			return &UpstreamError{Kind: KindInvalidContent, Message: fmt.Sprintf("question %d answer index out of range", i+1)}
		}
	}
	return nil
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     opts.Logger,
	}
}

// GenerateQuiz runs one generateContent call with the given credential and
// model tier. Failures carry a typed kind for the resilience wrapper.
func (c *Client) GenerateQuiz(ctx context.Context, credential, model string, req QuizRequest) (*Quiz, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: buildQuizPrompt(req)}},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	if err := c.invokeGemini(ctx, credential, path, payload, &response); err != nil {
		return nil, err
	}

	quiz, err := decodeQuiz(response)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Int("questions", len(quiz.Questions)).
		Msg("genai: generated quiz")
	return quiz, nil
}

func (c *Client) invokeGemini(ctx context.Context, credential, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", credential)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Kind: classifyTransport(err), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Kind: KindInvalidContent, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// decodeError builds a typed error from a non-2xx response. The provider's
// own message is preserved for operator logs; callers branch on Kind only.
func (c *Client) decodeError(resp *http.Response) error {
	kind := classifyStatus(resp.StatusCode)
	var apiErr geminiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		if apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
			kind = KindQuota
		}
		return &UpstreamError{Kind: kind, Status: resp.StatusCode, Message: apiErr.Error.Message}
	}
	data, _ := io.ReadAll(resp.Body)
	return &UpstreamError{Kind: kind, Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

func decodeQuiz(response geminiGenerateContentResponse) (*Quiz, error) {
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			var quiz Quiz
			if err := json.Unmarshal([]byte(text), &quiz); err != nil {
				return nil, &UpstreamError{Kind: KindInvalidContent, Message: fmt.Sprintf("decode quiz: %v", err)}
			}
			if err := quiz.Validate(); err != nil {
				return nil, err
			}
			return &quiz, nil
		}
	}
	return nil, &UpstreamError{Kind: KindInvalidContent, Message: "no content returned"}
}

func buildQuizPrompt(req QuizRequest) string {
	var b strings.Builder
	b.WriteString("Create a multiple-choice quiz as a JSON object with fields ")
	b.WriteString(`"title" and "questions" (each question has "prompt", "options", "answer" index and "explanation").`)
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		b.WriteString("\nTopic: ")
		b.WriteString(topic)
	}
	if difficulty := strings.TrimSpace(req.Difficulty); difficulty != "" {
		b.WriteString("\nDifficulty: ")
		b.WriteString(difficulty)
	}
	if req.QuestionCount > 0 {
		b.WriteString(fmt.Sprintf("\nNumber of questions: %d", req.QuestionCount))
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		b.WriteString("\nLanguage: ")
		b.WriteString(locale)
	}
	return b.String()
}

// EstimateTokens approximates the generation-token cost of a request before
// it runs. The admission check charges this estimate; tracking records it
// after success.
func EstimateTokens(questionCount int) int64 {
	if questionCount <= 0 {
		questionCount = 5
	}
	if questionCount > 50 {
		questionCount = 50
	}
	return int64(questionCount) * 120
}
