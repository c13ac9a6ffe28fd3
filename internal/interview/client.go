// Package interview is the HTTP client for the interview catalog service.
package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// Interview is an interview configuration as stored by the service.
type Interview struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	Role       string     `json:"role"`
	Experience string     `json:"experience"`
	Difficulty string     `json:"difficulty"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// CreateRequest configures a new interview.
type CreateRequest struct {
	Role       string `json:"role"`
	Experience string `json:"experience"`
	Difficulty string `json:"difficulty"`
	UserID     int64  `json:"userId"`
}

// Result is the post-session record used by the result view.
type Result struct {
	ID             int64  `json:"id"`
	Role           string `json:"role"`
	Experience     string `json:"experience"`
	Difficulty     string `json:"difficulty"`
	Status         string `json:"status"`
	ChatTranscript string `json:"chatTranscript"`
	Feedback       string `json:"feedback"`
	FeedbackStatus string `json:"feedbackStatus"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarkStarted tells the service the live session is beginning.
func (c *Client) MarkStarted(ctx context.Context, interviewID int64) error {
	return c.do(ctx, "start interview", http.MethodPost, "/interviews/"+id(interviewID)+"/start", nil, nil)
}

// MarkEnded tells the service the live session is over.
func (c *Client) MarkEnded(ctx context.Context, interviewID int64) error {
	return c.do(ctx, "end interview", http.MethodPost, "/interviews/"+id(interviewID)+"/end", nil, nil)
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (Interview, error) {
	if req.UserID <= 0 {
		return Interview{}, fmt.Errorf("create interview: user not signed in")
	}
	var out Interview
	err := c.do(ctx, "create interview", http.MethodPost, "/interviews", req, &out)
	return out, err
}

func (c *Client) List(ctx context.Context, userID int64) ([]Interview, error) {
	var out []Interview
	err := c.do(ctx, "fetch interviews", http.MethodGet, "/interviews/user/"+id(userID), nil, &out)
	return out, err
}

func (c *Client) Result(ctx context.Context, interviewID int64) (Result, error) {
	var out Result
	err := c.do(ctx, "get result", http.MethodGet, "/interviews/"+id(interviewID)+"/result", nil, &out)
	return out, err
}

// FetchTranscript returns the raw turn log stored for the interview.
func (c *Client) FetchTranscript(ctx context.Context, interviewID int64) (string, error) {
	res, err := c.Result(ctx, interviewID)
	if err != nil {
		return "", err
	}
	return res.ChatTranscript, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &CallError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CallError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		callErr := &CallError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		c.logger.Warn("interview service call failed", "op", op, "status", resp.StatusCode)
		return callErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &CallError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
