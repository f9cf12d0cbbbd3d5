package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/versus/pkg/auth"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Item is the part of an item the simulation reads.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the part of a session snapshot the simulation reads.
type Session struct {
	ID   string `json:"id"`
	Pair *struct {
		A Item `json:"a"`
		B Item `json:"b"`
	} `json:"pair"`
}

// Entry is a leaderboard row.
type Entry struct {
	Rank   int     `json:"rank"`
	ItemID string  `json:"item_id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

type voteReply struct {
	VoteID  string  `json:"vote_id"`
	Session Session `json:"session"`
}

// Client talks to the versus HTTP API as one voter.
type Client struct {
	http    *http.Client
	baseURL string
	headers http.Header
}

// NewClient creates a client. When tokens is non-nil the voter identifies
// with a bearer token, otherwise with the development headers.
func NewClient(baseURL string, timeout time.Duration, id auth.Identity, tokens *auth.Provider) (*Client, error) {
	h := http.Header{}
	if tokens != nil && tokens.Enabled() {
		tok, err := tokens.Issue(id, time.Hour)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+tok)
	} else {
		h.Set(auth.HeaderUserID, id.UserID)
		h.Set(auth.HeaderName, id.Name)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: h,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateSession opens a session on list.
func (c *Client) CreateSession(ctx context.Context, list int64) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions", map[string]int64{"list_id": list}, &s)
	return s, err
}

// Vote picks winnerID in the session's current pair.
func (c *Client) Vote(ctx context.Context, sessionID, winnerID, requestID string) (Session, error) {
	var r voteReply
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/votes",
		map[string]string{"winner_id": winnerID, "request_id": requestID}, &r)
	return r.Session, err
}

// Leaderboard returns the top n entries of list.
func (c *Client) Leaderboard(ctx context.Context, list int64, n int) ([]Entry, error) {
	var out []Entry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/lists/%d/leaderboard?limit=%d", list, n), nil, &out)
	return out, err
}
