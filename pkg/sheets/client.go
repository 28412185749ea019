package sheets

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

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

const (
	DefaultSheetsBaseURL = "https://sheets.googleapis.com/v4"
	DefaultDriveBaseURL  = "https://www.googleapis.com/drive/v3"

	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
)

// TokenSource supplies bearer tokens for spreadsheet calls. Token returns a
// token believed to be valid. HandleUnauthorized is called after the backend
// rejects a token with 401 and returns a replacement for one retry.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	HandleUnauthorized(ctx context.Context) (string, error)
}

// Client talks to the spreadsheet and document-listing APIs.
type Client struct {
	sheetsBaseURL string
	driveBaseURL  string
	httpClient    *http.Client
	tokens        TokenSource
}

type ClientOption func(*Client)

// WithSheetsBaseURL overrides the spreadsheet API endpoint.
func WithSheetsBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.sheetsBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithDriveBaseURL overrides the document-listing API endpoint.
func WithDriveBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.driveBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a spreadsheet client backed by the given token source.
func NewClient(tokens TokenSource, options ...ClientOption) *Client {
	c := &Client{
		sheetsBaseURL: DefaultSheetsBaseURL,
		driveBaseURL:  DefaultDriveBaseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokens:        tokens,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// ReadRange fetches the values of a single A1 range.
func (c *Client) ReadRange(ctx context.Context, documentID, a1Range string) (ValueRange, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		c.sheetsBaseURL, url.PathEscape(documentID), url.PathEscape(a1Range))

	var result struct {
		Range  string     `json:"range"`
		Values [][]string `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return ValueRange{}, err
	}
	return ValueRange{Range: result.Range, Values: result.Values}, nil
}

// BatchRead fetches several A1 ranges in one call, in the order requested.
func (c *Client) BatchRead(ctx context.Context, documentID string, a1Ranges []string) ([]ValueRange, error) {
	query := url.Values{}
	for _, r := range a1Ranges {
		query.Add("ranges", r)
	}
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values:batchGet?%s",
		c.sheetsBaseURL, url.PathEscape(documentID), query.Encode())

	var result struct {
		ValueRanges []ValueRange `json:"valueRanges"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.ValueRanges, nil
}

// AppendRows appends rows after the last row of the given range's table.
func (c *Client) AppendRows(ctx context.Context, documentID, a1Range string, rows [][]string) (AppendResult, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED",
		c.sheetsBaseURL, url.PathEscape(documentID), url.PathEscape(a1Range))

	body := map[string]interface{}{"values": rows}
	var result struct {
		Updates AppendResult `json:"updates"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return AppendResult{}, err
	}
	return result.Updates, nil
}

// UpdateRange overwrites the cells of the given range.
func (c *Client) UpdateRange(ctx context.Context, documentID, a1Range string, rows [][]string) (UpdateResult, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueInputOption=USER_ENTERED",
		c.sheetsBaseURL, url.PathEscape(documentID), url.PathEscape(a1Range))

	body := map[string]interface{}{"values": rows}
	var result UpdateResult
	if err := c.do(ctx, http.MethodPut, endpoint, body, &result); err != nil {
		return UpdateResult{}, err
	}
	return result, nil
}

// ListDocuments returns the spreadsheets the current credential can see,
// most recently modified first.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("mimeType='%s' and trashed=false", spreadsheetMimeType))
	query.Set("orderBy", "modifiedTime desc")
	query.Set("fields", "files(id,name,modifiedTime)")
	endpoint := fmt.Sprintf("%s/files?%s", c.driveBaseURL, query.Encode())

	var result struct {
		Files []Document `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// CreateDocument creates a new empty spreadsheet with the given title.
func (c *Client) CreateDocument(ctx context.Context, title string) (Document, error) {
	endpoint := c.sheetsBaseURL + "/spreadsheets"
	body := map[string]interface{}{
		"properties": map[string]string{"title": title},
	}

	var result struct {
		SpreadsheetID string `json:"spreadsheetId"`
		Properties    struct {
			Title string `json:"title"`
		} `json:"properties"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return Document{}, err
	}
	return Document{ID: result.SpreadsheetID, Name: result.Properties.Title}, nil
}

// do runs one authenticated request. A 401 response triggers exactly one
// token refresh and replay. Any other non-2xx status is returned as an
// error without touching the response body as data.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, method, endpoint, body, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		token, err = c.tokens.HandleUnauthorized(ctx)
		if err != nil {
			return err
		}
		slog.Debug("Replaying spreadsheet request after token refresh", "endpoint", endpoint)
		resp, err = c.roundTrip(ctx, method, endpoint, body, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return clinicerr.Unauthorized("spreadsheet backend rejected the access token")
	}
	if resp.StatusCode == http.StatusNotFound {
		return clinicerr.New(clinicerr.ErrCodeDocumentNotFound, "document not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return clinicerr.Newf(clinicerr.ErrCodeTransport,
			"spreadsheet backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return clinicerr.Wrap(err, clinicerr.ErrCodeTransport, "failed to decode spreadsheet response")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body interface{}, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, clinicerr.InternalWrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, clinicerr.InternalWrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clinicerr.Wrap(err, clinicerr.ErrCodeTransport, "spreadsheet request failed")
	}
	return resp, nil
}
