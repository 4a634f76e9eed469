// Package graph sends direct messages through the Graph API send endpoint.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dm-relay/internal/integrations/paramstore"
)

const (
	defaultBaseURL          = "https://graph.facebook.com/v23.0"
	defaultMessagingProduct = "instagram"

	senderActionTypingOn = "typing_on"
)

type recipient struct {
	ID string `json:"id"`
}

type attachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type message struct {
	Text       string      `json:"text,omitempty"`
	Attachment *attachment `json:"attachment,omitempty"`
}

// sendRequest covers the three payload variants accepted by /me/messages.
type sendRequest struct {
	MessagingProduct string    `json:"messaging_product,omitempty"`
	Recipient        recipient `json:"recipient"`
	Message          *message  `json:"message,omitempty"`
	SenderAction     string    `json:"sender_action,omitempty"`
}

// HTTPStatusError captures non-2xx responses from the send endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("graph: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts send actions authenticated with a page access token passed as
// the access_token query parameter.
type Client struct {
	baseURL          string
	messagingProduct string
	httpClient       *http.Client
	getter           paramstore.Getter
	paramPrefix      string
	staticToken      string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMessagingProduct sets messaging_product on text sends; empty omits it.
func WithMessagingProduct(product string) Option {
	return func(c *Client) {
		c.messagingProduct = strings.TrimSpace(product)
	}
}

// WithAccessToken pins the page token and skips the parameter store lookup.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.staticToken = strings.TrimSpace(token)
	}
}

// NewClient creates a Client. Unless WithAccessToken is given, the token is
// read from <paramPrefix>/page-access-token on first use and cached once it
// succeeds.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:          defaultBaseURL,
		messagingProduct: defaultMessagingProduct,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		getter:           ps,
		paramPrefix:      strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticToken == "" {
		if ps == nil {
			return nil, errors.New("graph: paramstore getter must not be nil")
		}
		if c.paramPrefix == "" {
			return nil, errors.New("graph: parameter prefix must not be empty")
		}
	}
	return c, nil
}

// resolveToken caches only a successful lookup so a throttled or cancelled
// first call does not break later sends.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if c.staticToken != "" {
		return c.staticToken, nil
	}
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := paramstore.Token(ctx, c.getter, paramstore.Path(c.paramPrefix, paramstore.KeyPageAccessToken))
	if err != nil {
		return "", fmt.Errorf("graph: %w", err)
	}
	c.token = token
	return token, nil
}

func messagesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/me/messages"
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("graph: text must not be empty")
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: c.messagingProduct,
		Recipient:        recipient{ID: recipientID},
		Message:          &message{Text: text},
	})
}

// SendImage delivers an image attachment referencing a remote, reusable URL.
func (c *Client) SendImage(ctx context.Context, recipientID, imageURL string) error {
	if _, err := url.ParseRequestURI(strings.TrimSpace(imageURL)); err != nil {
		return fmt.Errorf("graph: invalid image url: %w", err)
	}
	return c.send(ctx, sendRequest{
		Recipient: recipient{ID: recipientID},
		Message: &message{Attachment: &attachment{
			Type:    "image",
			Payload: attachmentPayload{URL: strings.TrimSpace(imageURL), IsReusable: true},
		}},
	})
}

// SendTypingIndicator shows the typing bubble to the recipient.
func (c *Client) SendTypingIndicator(ctx context.Context, recipientID string) error {
	return c.send(ctx, sendRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: senderActionTypingOn,
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	if strings.TrimSpace(payload.Recipient.ID) == "" {
		return errors.New("graph: recipient id must not be empty")
	}
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("graph: marshal request: %w", err)
	}

	endpoint := messagesURL(c.baseURL) + "?" + url.Values{"access_token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graph: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		// The transport error embeds the URL, which carries the token.
		return fmt.Errorf("graph: request failed: %w", redact(err, token))
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func redact(err error, token string) error {
	var urlErr *url.Error
	if token == "" || !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{
		Op:  urlErr.Op,
		URL: strings.ReplaceAll(urlErr.URL, url.QueryEscape(token), "REDACTED"),
		Err: urlErr.Err,
	}
}
