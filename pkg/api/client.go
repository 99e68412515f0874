package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// FallbackMessage is shown when an error response carries no usable body.
const FallbackMessage = "An unexpected error occurred. Please try again."

// TokenProvider supplies the bearer credential attached to every request.
// Keeping this behind an interface means the client never reads ambient
// storage directly.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider for a fixed credential.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", errors.New("no auth token configured")
	}
	return string(s), nil
}

// APIError is a non-2xx response with the best human-readable message the
// body offered.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// UserMessage extracts a message suitable for showing in the chat from any
// error. API errors carry the server's own wording; everything else (network
// failures, decode errors) degrades to the generic fallback.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return FallbackMessage
}

// Client is a thin HTTP wrapper around the onboarding endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, tokens TokenProvider, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// StartChat starts a new onboarding session or resumes the active one.
func (c *Client) StartChat(ctx context.Context) (*StartResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/onboarding/chat/", nil, "")
	if err != nil {
		return nil, err
	}
	var out StartResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("session_id", out.SessionID).
		Bool("is_resuming", out.IsResuming).
		Int("history_len", len(out.ConversationHistory)).
		Msg("chat session started")
	return &out, nil
}

// SubmitAnswer sends one answer and returns the next question.
func (c *Client) SubmitAnswer(ctx context.Context, answer AnswerRequest) (*AnswerResponse, error) {
	body, err := json.Marshal(answer)
	if err != nil {
		return nil, errors.Wrap(err, "encode answer")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/onboarding/chat/", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	var out AnswerResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("step", answer.Step).
		Str("next_step", out.Question.Step).
		Int("completion", out.Progress.CompletionPercentage).
		Msg("answer submitted")
	return &out, nil
}

// UploadDocuments sends all files of a batch as a single multipart request
// tagged to the current step. There are no per-file results; the server
// answers with one aggregate document status.
func (c *Client) UploadDocuments(ctx context.Context, step, sessionID string, files []File) (*UploadResponse, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files[]", f.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "create form file %s", f.Name)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, errors.Wrapf(err, "read file %s", f.Name)
		}
	}
	if err := w.WriteField("step", step); err != nil {
		return nil, errors.Wrap(err, "write step field")
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, errors.Wrap(err, "write session_id field")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/onboarding/upload_documents/", &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Int("files", len(files)).
		Bool("all_uploaded", out.DocumentStatus.AllUploaded).
		Int("missing", len(out.DocumentStatus.MissingDocuments)).
		Msg("documents uploaded")
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", path)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, errors.Wrap(err, "resolve auth token")
	}
	req.Header.Set("Authorization", "Token "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("request failed")
		return errors.Wrap(err, "send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := extractErrorMessage(body)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", req.URL.String()).
			Str("message", msg).
			Msg("request rejected")
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// extractErrorMessage picks the best human-readable message out of an error
// body: "error", then "detail", then the generic fallback.
func extractErrorMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return FallbackMessage
	}
	for _, key := range []string{"error", "detail"} {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return FallbackMessage
}
