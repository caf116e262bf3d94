// Package auditclient wraps the external audit platform's HTTP API for one
// tenant connection: validate, structure, upload, update, delete, status.
package auditclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInsecureEndpoint is returned before any network call when the
	// configured endpoint is not HTTPS.
	ErrInsecureEndpoint = errors.New("audit platform endpoint must use https")

	// ErrTimeout marks a bounded wait that expired.
	ErrTimeout = errors.New("audit platform request timed out")
)

var keyPattern = regexp.MustCompile(KeyPrefix + `[A-Za-z0-9_]+`)

// Redact scrubs anything resembling a platform API key from a string that
// is about to be persisted or displayed.
func Redact(s string) string {
	return redactCredential(s)
}

// redactCredential scrubs anything resembling a platform API key from an
// error string before it is returned, logged or persisted.
func redactCredential(s string) string {
	return keyPattern.ReplaceAllString(s, "[redacted]")
}

// Doer issues HTTP requests. Production uses a timeout-bounded *http.Client;
// tests inject fakes. Production code never branches on environment.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	Endpoint  string
	APIKey    string
	Transport Doer          // defaults to an *http.Client with Timeout
	Pacer     *rate.Limiter // inter-upload pacing for bulk operations
	Timeout   time.Duration // defaults to 30s
	Logger    *zap.Logger
}

// Client is one authenticated session against the audit platform.
type Client struct {
	endpoint string
	apiKey   string
	http     Doer
	pacer    *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient builds a client. The endpoint is not validated here; every
// operation checks it before touching the network.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Client{Timeout: timeout}
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = rate.NewLimiter(rate.Limit(2), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		http:     transport,
		pacer:    pacer,
		timeout:  timeout,
		logger:   logger,
	}
}

// checkEndpoint rejects non-HTTPS endpoints before any network call.
func (c *Client) checkEndpoint() error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "https" {
		return ErrInsecureEndpoint
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, redactCredential(err.Error()))
		}
		return nil, fmt.Errorf("audit platform request failed: %s", redactCredential(err.Error()))
	}
	return resp, nil
}

// ValidateConnection verifies the credential against the platform. Transport
// failures and non-2xx responses surface as Valid=false with a reason; an
// error is returned only when the call could not be attempted at all.
func (c *Client) ValidateConnection(ctx context.Context) (*ValidationResult, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/auth/validate", nil)
	if err != nil {
		return nil, fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return &ValidationResult{Valid: false, Error: "validation request timed out"}, nil
		}
		return &ValidationResult{Valid: false, Error: redactCredential(err.Error())}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ValidationResult{Valid: false, Error: c.serverError(resp)}, nil
	}

	var result ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}
	result.Valid = true
	result.Error = ""
	return &result, nil
}

// GetAuditStructure fetches the element/question hierarchy for one audit.
func (c *Client) GetAuditStructure(ctx context.Context, auditID string) (*AuditStructure, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/audits/%s/structure", c.endpoint, url.PathEscape(auditID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build structure request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch audit structure: %s", c.serverError(resp))
	}

	var structure AuditStructure
	if err := json.NewDecoder(resp.Body).Decode(&structure); err != nil {
		return nil, fmt.Errorf("decode audit structure: %w", err)
	}
	return &structure, nil
}

// UploadEvidence posts a multipart evidence payload. Rejections come back as
// Success=false with the server message; transport failures are errors.
func (c *Client) UploadEvidence(ctx context.Context, item *EvidenceItem) (*UploadResult, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	writer.WriteField("cor_element", strconv.Itoa(item.Element))
	writer.WriteField("question_id", item.QuestionID)
	writer.WriteField("evidence_type", item.EvidenceType)
	writer.WriteField("title", item.Title)
	writer.WriteField("description", item.Description)
	writer.WriteField("date", item.Date.Format("2006-01-02"))

	if len(item.Metadata) > 0 {
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode evidence metadata: %w", err)
		}
		writer.WriteField("metadata", string(meta))
	}

	if item.Attachment != nil {
		part, err := writer.CreateFormFile("file", item.Attachment.Name)
		if err != nil {
			return nil, fmt.Errorf("attach evidence file: %w", err)
		}
		if _, err := part.Write(item.Attachment.Data); err != nil {
			return nil, fmt.Errorf("write evidence file: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize evidence payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/audits/%s/evidence", c.endpoint, url.PathEscape(item.AuditID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadResult{Success: false, Error: c.serverError(resp)}, nil
	}

	var payload struct {
		EvidenceID string `json:"evidence_id"`
		Message    string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	return &UploadResult{
		Success:        true,
		ExternalItemID: payload.EvidenceID,
		Message:        payload.Message,
	}, nil
}

// BulkUploadEvidence uploads items strictly sequentially, pacing calls with
// the configured limiter. One item's failure is recorded and never stops the
// loop; onProgress fires after every item regardless of outcome.
func (c *Client) BulkUploadEvidence(ctx context.Context, auditID string, items []*EvidenceItem, onProgress ProgressFunc) (*BulkUploadResult, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	result := &BulkUploadResult{}
	total := len(items)

	for i, item := range items {
		if err := c.pacer.Wait(ctx); err != nil {
			return result, fmt.Errorf("upload pacing interrupted: %w", err)
		}

		item.AuditID = auditID
		upload, err := c.UploadEvidence(ctx, item)
		if err != nil {
			result.Errors = append(result.Errors, BulkItemError{
				Index: i + 1,
				Title: item.Title,
				Error: redactCredential(err.Error()),
			})
		} else {
			result.Results = append(result.Results, *upload)
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return result, nil
}

// UpdateEvidence patches an already-uploaded evidence item.
func (c *Client) UpdateEvidence(ctx context.Context, externalID string, updates map[string]interface{}) error {
	if err := c.checkEndpoint(); err != nil {
		return err
	}

	payload, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encode evidence update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/evidence/%s", c.endpoint, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("update evidence: %s", c.serverError(resp))
	}
	return nil
}

// DeleteEvidence removes an evidence item from the platform.
func (c *Client) DeleteEvidence(ctx context.Context, externalID string) error {
	if err := c.checkEndpoint(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/evidence/%s", c.endpoint, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete evidence: %s", c.serverError(resp))
	}
	return nil
}

// GetAuditStatus fetches the platform-side status summary for one audit.
func (c *Client) GetAuditStatus(ctx context.Context, auditID string) (map[string]interface{}, error) {
	if err := c.checkEndpoint(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/audits/%s/status", c.endpoint, url.PathEscape(auditID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch audit status: %s", c.serverError(resp))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode audit status: %w", err)
	}
	return status, nil
}

// serverError extracts the server-supplied message from a non-2xx response,
// falling back to the HTTP status, with credentials scrubbed either way.
func (c *Client) serverError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return redactCredential(payload.Error)
		}
		if payload.Message != "" {
			return redactCredential(payload.Message)
		}
	}
	return fmt.Sprintf("audit platform returned %s", resp.Status)
}
