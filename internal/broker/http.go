package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPAuthority asks the broker's REST API whether a table or column exists.
// 200 means it exists and 404 means it does not; every other status is
// indeterminate.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAuthority(baseURL string, client *http.Client) *HTTPAuthority {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuthority{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (a *HTTPAuthority) TableExists(ctx context.Context, table string) (bool, error) {
	path := fmt.Sprintf("/tables/%s", url.PathEscape(table))
	exists, err := a.exists(ctx, path)
	if err != nil {
		return false, indeterminate(table, "", err)
	}
	return exists, nil
}

func (a *HTTPAuthority) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	path := fmt.Sprintf("/tables/%s/columns/%s", url.PathEscape(table), url.PathEscape(column))
	exists, err := a.exists(ctx, path)
	if err != nil {
		return false, indeterminate(table, column, err)
	}
	return exists, nil
}

func (a *HTTPAuthority) exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build broker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected broker status %d for %s", resp.StatusCode, path)
	}
}
