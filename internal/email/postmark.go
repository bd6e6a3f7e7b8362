package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Client sends reminder emails through the Postmark API.
type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a Postmark client. baseURL is the public address of the
// service and is used for links back to the task or event.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

func subjectFor(n model.Notification) string {
	switch n.Type {
	case model.NotifTypeOverdue:
		return "Overdue: " + n.Title
	case model.NotifTypeUpcoming:
		return "Due soon: " + n.Title
	default:
		return "Reminder: " + n.Title
	}
}

func (c *Client) linkFor(n model.Notification) string {
	switch {
	case n.TaskID != nil:
		return fmt.Sprintf("%s/tasks/%d", c.baseURL, *n.TaskID)
	case n.EventID != nil:
		return fmt.Sprintf("%s/events/%d", c.baseURL, *n.EventID)
	}
	return c.baseURL + "/notifications"
}

// SendReminder emails notification n to the named recipient.
func (c *Client) SendReminder(ctx context.Context, toEmail, toName string, n model.Notification) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	link := c.linkFor(n)
	greeting := "Hi"
	if toName != "" {
		greeting = "Hi " + toName
	}
	textBody := fmt.Sprintf("%s,\n\n%s\n\n%s", greeting, n.Message, link)
	htmlBody := fmt.Sprintf(
		`<p>%s,</p><p>%s</p><p><a href="%s">Open in Cadence</a></p>`,
		html.EscapeString(greeting), html.EscapeString(n.Message), html.EscapeString(link),
	)

	payload := postmarkEmail{
		From:          c.fromEmail,
		To:            toEmail,
		Subject:       subjectFor(n),
		HtmlBody:      htmlBody,
		TextBody:      textBody,
		MessageStream: "outbound",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
