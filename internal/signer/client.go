package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/safegear/services/ppe/config"
)

// Recipient identifies the person asked to sign
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmitResult is the signer service's handle for a submitted document
type SubmitResult struct {
	EnvelopeID  string `json:"envelope_id"`
	DocumentKey string `json:"document_key"`
	SignerID    string `json:"signer_id"`
}

// Client defines the interface to the external e-signature provider
type Client interface {
	Submit(ctx context.Context, document []byte, recipient Recipient) (*SubmitResult, error)
	FetchSignedURL(ctx context.Context, envelopeID, documentKey string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Notify(ctx context.Context, envelopeID string) error
	PortalURL(envelopeID, signerID string) string
}

// UnavailableError marks signer-service failures so callers can retry
// instead of treating them as internal conflicts
type UnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("signer service unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error
func (e *UnavailableError) Unwrap() error { return e.Err }

// httpClient implements Client over the provider's REST API
type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new signer client
func NewClient(cfg *config.SignerConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Submit uploads a document for signature and returns the envelope handle
func (c *httpClient) Submit(ctx context.Context, document []byte, recipient Recipient) (*SubmitResult, error) {
	payload := map[string]interface{}{
		"document":  base64.StdEncoding.EncodeToString(document),
		"recipient": recipient,
	}

	var result SubmitResult
	if err := c.post(ctx, "/v1/envelopes", payload, &result); err != nil {
		return nil, &UnavailableError{Op: "submit", Err: err}
	}
	return &result, nil
}

// FetchSignedURL asks the provider for the signed artifact's download URL.
// Returns an empty string when the envelope is not signed yet.
func (c *httpClient) FetchSignedURL(ctx context.Context, envelopeID, documentKey string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/v1/envelopes/%s/documents/%s/signed-url", envelopeID, documentKey)
	if err := c.get(ctx, path, &result); err != nil {
		return "", &UnavailableError{Op: "fetch-signed-url", Err: err}
	}
	return result.URL, nil
}

// Download fetches the signed artifact bytes
func (c *httpClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Op: "download", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &UnavailableError{Op: "download", Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}
	return io.ReadAll(res.Body)
}

// Notify asks the provider to resend the signature request to the signer
func (c *httpClient) Notify(ctx context.Context, envelopeID string) error {
	path := fmt.Sprintf("/v1/envelopes/%s/notify", envelopeID)
	if err := c.post(ctx, path, map[string]interface{}{}, nil); err != nil {
		return &UnavailableError{Op: "notify", Err: err}
	}
	return nil
}

// PortalURL returns the signer-facing portal link for an envelope
func (c *httpClient) PortalURL(envelopeID, signerID string) string {
	return fmt.Sprintf("%s/sign/%s?signer=%s", c.baseURL, envelopeID, signerID)
}

func (c *httpClient) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, result)
}

func (c *httpClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, result)
}

func (c *httpClient) do(req *http.Request, result interface{}) error {
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("signer responded with status %d", res.StatusCode)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(result)
}
