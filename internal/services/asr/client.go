package asr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"subline/internal/services"
	"subline/internal/subtitle"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxTextBytes       = 16 << 20
	laneName           = "transcription"
)

// Config describes the provider client configuration.
type Config struct {
	BaseURL     string
	AppKey      string
	AccessToken string
	InsecureTLS bool
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client implements Provider over HTTPS.
type Client struct {
	baseURL *url.URL
	appKey  string
	token   string
	http    *http.Client
}

var _ Provider = (*Client)(nil)

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("asr: base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("asr: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
		if cfg.InsecureTLS {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for non-production providers
			client.Transport = transport
		}
	}
	return &Client{
		baseURL: baseURL,
		appKey:  strings.TrimSpace(cfg.AppKey),
		token:   strings.TrimSpace(cfg.AccessToken),
		http:    client,
	}, nil
}

type submitPayload struct {
	MediaURL  string `json:"media_url"`
	Model     string `json:"model,omitempty"`
	Language  string `json:"language,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type taskPayload struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type linkPayload struct {
	URL string `json:"url"`
}

type wordsPayload struct {
	Words []struct {
		Text    string `json:"text"`
		StartMS int64  `json:"start_ms"`
		EndMS   int64  `json:"end_ms"`
	} `json:"words"`
}

// Submit creates a transcription task and returns its id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.MediaURL) == "" {
		return "", services.Wrap(services.ErrPermanent, laneName, "submit", "media url is required", nil)
	}
	body, err := json.Marshal(submitPayload(req))
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, laneName, "submit", "encode request", err)
	}
	var payload taskPayload
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL.JoinPath("tasks").String(), body, "submit", &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.TaskID) == "" {
		return "", services.Wrap(services.ErrPermanent, laneName, "submit", "response missing task_id", nil)
	}
	return payload.TaskID, nil
}

// Task fetches a single task.
func (c *Client) Task(ctx context.Context, taskID string) (TaskInfo, error) {
	var payload taskPayload
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL.JoinPath("tasks", taskID).String(), nil, "task", &payload); err != nil {
		return TaskInfo{}, err
	}
	return payload.info()
}

// ListTasks returns the provider's known tasks.
func (c *Client) ListTasks(ctx context.Context) ([]TaskInfo, error) {
	var payload struct {
		Tasks []taskPayload `json:"tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL.JoinPath("tasks").String(), nil, "list tasks", &payload); err != nil {
		return nil, err
	}
	out := make([]TaskInfo, 0, len(payload.Tasks))
	for _, task := range payload.Tasks {
		info, err := task.info()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// SubtitleLink returns a URL for the task's subtitle file.
func (c *Client) SubtitleLink(ctx context.Context, taskID string) (string, error) {
	return c.link(ctx, taskID, "subtitle")
}

// TranscriptLink returns a URL for the task's plain-text transcript.
func (c *Client) TranscriptLink(ctx context.Context, taskID string) (string, error) {
	return c.link(ctx, taskID, "transcript")
}

func (c *Client) link(ctx context.Context, taskID, kind string) (string, error) {
	var payload linkPayload
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL.JoinPath("tasks", taskID, kind).String(), nil, kind+" link", &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.URL) == "" {
		return "", services.Wrap(services.ErrPermanent, laneName, kind+" link", "response missing url", nil)
	}
	resolved, err := c.baseURL.Parse(payload.URL)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, laneName, kind+" link", "invalid url", err)
	}
	return resolved.String(), nil
}

// WordSegments returns the timed words of a completed task. Providers that do
// not support word timing answer 404, which yields (nil, nil).
func (c *Client) WordSegments(ctx context.Context, taskID string) ([]subtitle.Word, error) {
	var payload wordsPayload
	err := c.doJSON(ctx, http.MethodGet, c.baseURL.JoinPath("tasks", taskID, "words").String(), nil, "words", &payload)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	words := make([]subtitle.Word, 0, len(payload.Words))
	for _, w := range payload.Words {
		if w.EndMS < w.StartMS {
			return nil, services.Wrap(services.ErrPermanent, laneName, "words", fmt.Sprintf("word %q ends before it starts", w.Text), nil)
		}
		words = append(words, subtitle.Word{
			Text:  w.Text,
			Start: time.Duration(w.StartMS) * time.Millisecond,
			End:   time.Duration(w.EndMS) * time.Millisecond,
		})
	}
	return words, nil
}

// RetrieveText downloads a text artifact.
func (c *Client) RetrieveText(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "retrieve text")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBytes+1))
	if err != nil {
		return "", transportError(ctx, "retrieve text", "read body", err)
	}
	if len(data) > maxTextBytes {
		return "", services.Wrap(services.ErrPermanent, laneName, "retrieve text", "artifact exceeds size limit", nil)
	}
	return string(data), nil
}

var errNoContent = errors.New("asr: resource not available")

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, op string, out any) error {
	resp, err := c.do(ctx, method, endpoint, body, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return transportError(ctx, op, "read body", err)
		}
		return services.Wrap(services.ErrPermanent, laneName, op, "decode response", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, op string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, laneName, op, "build request", err)
	}
	c.applyHeaders(req, body != nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, "request failed", err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusNotFound && op == "words":
		return nil, errNoContent
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, laneName, op, message, nil)
	default:
		return nil, services.Wrap(services.ErrPermanent, laneName, op, message, nil)
	}
}

// transportError classifies a failed exchange. Cancellation of the caller's
// context is returned unchanged. A client-side timeout is permanent so the
// topic fails instead of being polled forever; other network errors are transient.
func transportError(ctx context.Context, op, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isTimeout(err) {
		return services.Wrap(services.ErrPermanent, laneName, op, "timeout", nil)
	}
	return services.Wrap(services.ErrTransient, laneName, op, message, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) applyHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.appKey != "" {
		req.Header.Set("X-App-Key", c.appKey)
	}
}

func (p taskPayload) info() (TaskInfo, error) {
	state := TaskState(strings.ToLower(strings.TrimSpace(p.Status)))
	switch state {
	case TaskQueued, TaskRunning, TaskSucceeded, TaskFailed:
	default:
		return TaskInfo{}, services.Wrap(services.ErrPermanent, laneName, "task", fmt.Sprintf("unknown task status %q", p.Status), nil)
	}
	info := TaskInfo{
		ID:       p.TaskID,
		State:    state,
		Error:    p.Error,
		Duration: time.Duration(p.DurationMS) * time.Millisecond,
	}
	if p.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
			info.CreatedAt = created
		}
	}
	return info, nil
}
