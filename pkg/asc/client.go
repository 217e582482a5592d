package asc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxPageIterations bounds every pagination loop. A cursor that never
// advances trips this ceiling instead of looping forever.
const maxPageIterations = 50

const pageLimit = 200

// Client is an authenticated App Store Connect API client. Every request
// mints a fresh short-lived token from the resolved credentials.
type Client struct {
	creds *Credentials

	// BaseURL overrides the production API endpoint, used by tests.
	BaseURL string

	HTTP *http.Client

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// NewClient creates a client from resolved credentials.
func NewClient(creds *Credentials) *Client {
	return &Client{
		creds:   creds,
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{},
		sleep:   time.Sleep,
	}
}

// do performs an authenticated request and decodes the response into out.
// A server errors envelope is surfaced before any decoding; DELETE
// requests tolerate an empty body on success.
func (c *Client) do(method, path string, query url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to JSON encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http %s request: %w", method, err)
	}

	token, err := GenerateToken(c.creds.PEM, c.creds.KeyID, c.creds.IssuerID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read http response: %w", err)
	}

	if method == http.MethodDelete && len(bytes.TrimSpace(data)) == 0 {
		if resp.StatusCode < 400 {
			return nil
		}
		return fmt.Errorf("%w: delete request failed with status %d", ErrRemoteAPI, resp.StatusCode)
	}

	var eresp ErrorResponse
	if err := json.Unmarshal(data, &eresp); err == nil && len(eresp.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrRemoteAPI, eresp.detail())
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s", ErrRemoteAPI, resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: failed to JSON decode http response: %v", ErrProtocol, err)
		}
	}
	return nil
}

type pagedResponse[T any] struct {
	Data  []T                `json:"data"`
	Links PagedDocumentLinks `json:"links"`
	Meta  Meta               `json:"meta"`
}

// fetchPaged walks a cursor-paginated list endpoint, concatenating pages
// in server order until the next link runs out or the iteration ceiling
// trips.
func fetchPaged[T any](c *Client, path string, params url.Values) ([]T, error) {
	var results []T
	cursor := ""
	for iteration := 1; ; iteration++ {
		if iteration > maxPageIterations {
			return nil, fmt.Errorf("%w: pagination did not terminate after %d pages of %s", ErrProtocol, maxPageIterations, path)
		}

		query := url.Values{}
		for k, vs := range params {
			query[k] = vs
		}
		query.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page pagedResponse[T]
		if err := c.do(http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}
		results = append(results, page.Data...)

		if page.Links.Next == "" {
			break
		}
		next, err := cursorFromLink(page.Links.Next)
		if err != nil || next == "" {
			break
		}
		cursor = next
	}
	return results, nil
}

func cursorFromLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return u.Query().Get("cursor"), nil
}
