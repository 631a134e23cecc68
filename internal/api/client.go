// Package api talks to the trip planner's remote REST API: saved trips,
// activity notes, token refresh and the AI suggestion endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// Authorizer runs a call with a bearer token and owns retry-on-401.
type Authorizer interface {
	Do(ctx context.Context, call func(ctx context.Context, token string) error) error
}

// Client is an authenticated client for the remote API.
type Client struct {
	baseURL string
	http    *http.Client
	auth    Authorizer
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, auth Authorizer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, auth: auth}
}

// ========== Trips ==========

// GetTrip fetches a saved trip.
func (c *Client) GetTrip(ctx context.Context, tripID int64) (TripRecord, error) {
	var rec TripRecord
	err := c.call(ctx, http.MethodGet, "/api/my-trips/"+strconv.FormatInt(tripID, 10)+"/", nil, &rec)
	return rec, err
}

// ========== Notes ==========

// ListNotes returns every note stored for a trip.
func (c *Client) ListNotes(ctx context.Context, tripID int64) ([]NoteRecord, error) {
	var notes []NoteRecord
	err := c.call(ctx, http.MethodGet, "/api/activity-notes/"+strconv.FormatInt(tripID, 10)+"/", nil, &notes)
	return notes, err
}

// SaveNote creates or updates the note at a position.
func (c *Client) SaveNote(ctx context.Context, req SaveNoteRequest) (NoteRecord, error) {
	var rec NoteRecord
	err := c.call(ctx, http.MethodPost, "/api/activity-note/", req, &rec)
	return rec, err
}

// ========== Suggestions ==========

// SuggestAdditions asks for activities to insert into a day.
func (c *Client) SuggestAdditions(ctx context.Context, req AddActivityRequest) ([]plan.Activity, error) {
	return c.suggest(ctx, "/api/chat-add-activity/", req)
}

// SuggestReplacement asks for activities to replace one activity.
func (c *Client) SuggestReplacement(ctx context.Context, req ReplaceActivityRequest) ([]plan.Activity, error) {
	return c.suggest(ctx, "/api/chat-replace-activity/", req)
}

func (c *Client) suggest(ctx context.Context, path string, body any) ([]plan.Activity, error) {
	var resp SuggestionResponse
	if err := c.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	acts, err := resp.Candidates()
	if err != nil {
		return nil, err
	}
	if len(acts) == 0 {
		return nil, errors.ErrSuggestionEmpty
	}
	return acts, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	return c.auth.Do(ctx, func(ctx context.Context, token string) error {
		return send(ctx, c.http, method, c.baseURL+path, token, body, out)
	})
}

// ========== Token refresh ==========

// Refresher exchanges a refresh token for a new access token. It is not
// routed through an Authorizer.
type Refresher struct {
	baseURL string
	http    *http.Client
}

// NewRefresher creates a Refresher. A nil httpClient uses http.DefaultClient.
func NewRefresher(baseURL string, httpClient *http.Client) *Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Refresher{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Refresh returns the new access token and, when rotated, the new refresh token.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	var out tokenPair
	if err := send(ctx, r.http, http.MethodPost, r.baseURL+"/api/token/refresh/", "", tokenPair{Refresh: refreshToken}, &out); err != nil {
		return "", "", err
	}
	if out.Access == "" {
		return "", "", fmt.Errorf("token refresh: response has no access token")
	}
	return out.Access, out.Refresh, nil
}

// ========== Transport ==========

func send(ctx context.Context, client *http.Client, method, url, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, url, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, errors.Join(errors.ErrNetwork, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, url, errors.Join(errors.ErrNetwork, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errors.HTTPError{Method: method, URL: url, Status: resp.StatusCode, Detail: detailOf(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}

const maxBody = 4 << 20

// detailOf extracts the error message from a REST error body.
func detailOf(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return plan.Truncate(string(body), 200)
}
