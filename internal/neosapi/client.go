package neosapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtc-tools/neos-proxy/internal/logging"
)

var log = logging.L("neosapi")

// Client talks to the Neos cloud API. Every call is a single point
// request: no batching, no retries. Failures surface as TransportError,
// DecodeError or NotFoundError and the caller decides how to degrade.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the given API base URL. The timeout
// bounds each individual request including body read.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Sessions fetches the current session directory listing.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.getJSON(ctx, "/api/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UserProfile fetches the full profile record for one user id.
func (c *Client) UserProfile(ctx context.Context, userID string) (*User, error) {
	var user User
	err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userID), &user)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, &NotFoundError{UserID: userID}
		}
		return nil, err
	}
	return &user, nil
}

// UserStatus fetches the user's current online and device state.
func (c *Client) UserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	var status UserStatus
	err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userID)+"/status", &status)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, &NotFoundError{UserID: userID}
		}
		return nil, err
	}
	return &status, nil
}

// errStatusNotFound marks a 404 inside the TransportError chain so the
// user endpoints can promote it to NotFoundError.
var errStatusNotFound = errors.New("upstream returned 404")

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &TransportError{URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &TransportError{URL: reqURL, Err: errStatusNotFound}
	case resp.StatusCode != http.StatusOK:
		return &TransportError{URL: reqURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Debug("response decode failed", "url", reqURL, logging.KeyError, err)
		return &DecodeError{URL: reqURL, Err: err}
	}
	return nil
}
