// Package freescout is a thin authenticated client for a FreeScout-style
// helpdesk API. It is the only component that talks to the remote ticket
// system: the poller fetches through it and confirmed actions are applied
// through it.
package freescout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"

	"github.com/deskhive-io/deskhive/pkg/protocol"
)

const requestTimeout = 30 * time.Second

// Client talks to one FreeScout instance on behalf of one support agent.
type Client struct {
	baseURL *url.URL
	apiKey  string
	userID  int64
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client. userID identifies the human agent whose assigned
// tickets are mirrored and on whose behalf replies are posted.
func New(baseURL, apiKey string, userID int64, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("freescout: parse base url %q: %w", baseURL, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: u,
		apiKey:  apiKey,
		userID:  userID,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}, nil
}

// --- wire types ---

type conversationPage struct {
	Embedded struct {
		Conversations []conversation `json:"conversations"`
	} `json:"_embedded"`
}

type conversation struct {
	ID       int64  `json:"id"`
	Number   int    `json:"number"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	Preview  string `json:"preview"`
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Tags         []tagRef          `json:"tags"`
	CustomFields []customField     `json:"customFields"`
	UpdatedAt    string            `json:"updatedAt"`
	Embedded     *conversationBody `json:"_embedded,omitempty"`
}

type conversationBody struct {
	Threads []thread `json:"threads"`
}

type thread struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"` // customer | message | note
	Body      string `json:"body"` // HTML
	CreatedAt string `json:"createdAt"`
}

type tagRef struct {
	Name string `json:"name"`
}

type customField struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (c conversation) toTicket() protocol.Ticket {
	t := protocol.Ticket{
		ID:            c.ID,
		Number:        c.Number,
		Subject:       c.Subject,
		Status:        c.Status,
		CustomerEmail: c.Customer.Email,
		Preview:       c.Preview,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, tag := range c.Tags {
		t.Tags = append(t.Tags, tag.Name)
	}
	if len(c.CustomFields) > 0 {
		t.CustomFields = make(map[string]string, len(c.CustomFields))
		for _, f := range c.CustomFields {
			t.CustomFields[f.Name] = f.Text
		}
	}
	return t
}

// FetchAssigned returns the tickets currently assigned to the configured
// agent.
func (c *Client) FetchAssigned(ctx context.Context) ([]protocol.Ticket, error) {
	path := fmt.Sprintf("/api/conversations?assignedTo=%d&pageSize=200", c.userID)
	var page conversationPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	tickets := make([]protocol.Ticket, 0, len(page.Embedded.Conversations))
	for _, conv := range page.Embedded.Conversations {
		tickets = append(tickets, conv.toTicket())
	}
	return tickets, nil
}

// CustomerText fetches the latest customer thread of a conversation and
// reduces its HTML body to readable plain text, for building AI context
// out of email bodies.
func (c *Client) CustomerText(ctx context.Context, conversationID int64) (string, error) {
	path := fmt.Sprintf("/api/conversations/%d?embed=threads", conversationID)
	var conv conversation
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return "", err
	}
	if conv.Embedded == nil {
		return "", fmt.Errorf("freescout: conversation %d has no threads", conversationID)
	}
	// Threads arrive newest first; take the most recent customer one.
	for _, th := range conv.Embedded.Threads {
		if th.Type == "customer" {
			return extractText(th.Body, c.baseURL)
		}
	}
	return "", fmt.Errorf("freescout: conversation %d has no customer thread", conversationID)
}

// extractText reduces an HTML email body to readable plain text.
func extractText(htmlBody string, base *url.URL) (string, error) {
	article, err := readability.FromReader(strings.NewReader(htmlBody), base)
	if err != nil {
		return "", fmt.Errorf("freescout: parse body: %w", err)
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return "", fmt.Errorf("freescout: render body: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Reply posts a public reply, optionally changing the ticket status in the
// same call.
func (c *Client) Reply(ctx context.Context, conversationID int64, text, status string) error {
	body := map[string]any{
		"type": "message",
		"text": text,
		"user": c.userID,
	}
	if status != "" {
		body["status"] = status
	}
	path := fmt.Sprintf("/api/conversations/%d/threads", conversationID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// UpdateStatus changes the ticket status only.
func (c *Client) UpdateStatus(ctx context.Context, conversationID int64, status string) error {
	body := map[string]any{
		"status": status,
		"byUser": c.userID,
	}
	path := fmt.Sprintf("/api/conversations/%d", conversationID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// AddNote records an internal note, invisible to the customer. Used for
// escalations.
func (c *Client) AddNote(ctx context.Context, conversationID int64, text string) error {
	body := map[string]any{
		"type": "note",
		"text": text,
		"user": c.userID,
	}
	path := fmt.Sprintf("/api/conversations/%d/threads", conversationID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// AddTags merges tags into the ticket's existing set. The tags endpoint
// replaces the full set, so the current tags are fetched first; nothing is
// ever removed.
func (c *Client) AddTags(ctx context.Context, conversationID int64, tags []string) error {
	var conv conversation
	path := fmt.Sprintf("/api/conversations/%d", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return err
	}

	merged := make([]string, 0, len(conv.Tags)+len(tags))
	seen := make(map[string]struct{})
	for _, t := range conv.Tags {
		merged = append(merged, t.Name)
		seen[t.Name] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := seen[t]; !ok {
			merged = append(merged, t)
			seen[t] = struct{}{}
		}
	}

	body := map[string]any{"tags": merged}
	return c.do(ctx, http.MethodPost, path+"/tags", body, nil)
}

// Apply executes one confirmed action against the remote ticket, selecting
// the operation by action kind.
func (c *Client) Apply(ctx context.Context, ticketID int64, action protocol.Action) error {
	switch action.Kind {
	case protocol.ActionSendReply:
		var p protocol.ReplyPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("freescout: reply payload: %w", err)
		}
		return c.Reply(ctx, ticketID, p.Text, p.Status)
	case protocol.ActionUpdateStatus:
		var p protocol.StatusPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("freescout: status payload: %w", err)
		}
		return c.UpdateStatus(ctx, ticketID, p.Status)
	case protocol.ActionAddTags:
		var p protocol.TagsPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("freescout: tags payload: %w", err)
		}
		return c.AddTags(ctx, ticketID, p.Tags)
	case protocol.ActionEscalate:
		var p protocol.EscalatePayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("freescout: escalate payload: %w", err)
		}
		note := fmt.Sprintf("Escalated: %s", p.Reason)
		if p.Target != "" {
			note = fmt.Sprintf("Escalated to %s: %s", p.Target, p.Reason)
		}
		return c.AddNote(ctx, ticketID, note)
	default:
		return fmt.Errorf("freescout: action kind %q has no remote operation", action.Kind)
	}
}

// do performs one authenticated JSON request. Non-2xx responses become
// errors carrying a snippet of the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("freescout: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("freescout: bad path %q: %w", path, err)
	}
	u := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("freescout: build request: %w", err)
	}
	req.Header.Set("X-FreeScout-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("freescout: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("freescout: %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("freescout: decode response: %w", err)
		}
	}
	return nil
}
