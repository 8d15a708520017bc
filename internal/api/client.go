package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/pathutil"
)

// Credentials identifies one remote connection. Owned by the session that
// holds it; token and password must never be logged in full.
type Credentials struct {
	BaseURL            string
	PublicURL          string
	FixedBaseDirectory string
	Username           string
	Password           string
	Token              string
}

// Identity returns the cache-identity of these credentials: two sessions
// with the same identity may share cached listings.
func (c Credentials) Identity() string {
	return c.BaseURL + "|" + c.Username
}

// Configured reports whether the credentials can reach a server at all.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// retryLogger adapts retryablehttp's logger to zerolog.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Msgf("retry: %s %v", msg, keysAndValues)
}
func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Msgf("retry: %s %v", msg, keysAndValues)
}
func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client talks to an Openlist-compatible file service.
// Safe for concurrent use; the auth token is refreshed under lock.
type Client struct {
	httpClient *nethttp.Client
	creds      Credentials
	baseURL    string

	mu    sync.Mutex
	token string
}

// NewClient creates a client for the given credentials. The base HTTP
// client supplies transport/proxy settings; retries are layered on top.
func NewClient(creds Credentials, base *nethttp.Client) *Client {
	retryClient := retryablehttp.NewClient()
	if base != nil {
		retryClient.HTTPClient = base
	}
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{}

	return &Client{
		httpClient: retryClient.StandardClient(),
		creds:      creds,
		baseURL:    strings.TrimSuffix(creds.BaseURL, "/"),
		token:      creds.Token,
	}
}

// envelope is the response wrapper used by every JSON endpoint.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ensureToken logs in with username/password when no token is held yet.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" || c.creds.Username == "" {
		return nil
	}

	body := map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := c.postLocked(ctx, "/api/auth/login", body, &data); err != nil {
		if IsAuthError(err) {
			return fmt.Errorf("login for %s: %w", c.creds.Username, ErrAuth)
		}
		return err
	}
	c.token = data.Token
	return nil
}

// post performs an authenticated JSON POST and decodes the data payload
// into out (which may be nil).
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postLocked(ctx, path, body, out)
}

func (c *Client) postLocked(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", path, err, ErrConnection)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, path, out)
}

func decodeEnvelope(resp *nethttp.Response, path string, out interface{}) error {
	switch resp.StatusCode {
	case nethttp.StatusUnauthorized, nethttp.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, ErrAuth)
	case nethttp.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", path, err)
	}
	if env.Code != 200 {
		msg := strings.ToLower(env.Message)
		switch {
		case env.Code == 401 || env.Code == 403 || strings.Contains(msg, "expired") || strings.Contains(msg, "invalid token"):
			return fmt.Errorf("%s: %s: %w", path, env.Message, ErrAuth)
		case strings.Contains(msg, "not found") || strings.Contains(msg, "not exist"):
			return fmt.Errorf("%s: %s: %w", path, env.Message, ErrNotFound)
		default:
			return fmt.Errorf("%s: remote error %d: %s", path, env.Code, env.Message)
		}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: failed to decode data: %w", path, err)
		}
	}
	return nil
}

// List returns all entries of a directory. Entries carry their full remote
// path derived from the listed directory.
func (c *Client) List(ctx context.Context, path string) ([]models.Entry, error) {
	body := map[string]interface{}{
		"path":     path,
		"password": "",
		"page":     1,
		"per_page": 0, // all entries; pagination happens locally
		"refresh":  false,
	}
	var data models.ListResponse
	if err := c.post(ctx, "/api/fs/list", body, &data); err != nil {
		return nil, err
	}
	entries := data.Content
	for i := range entries {
		entries[i].Path = pathutil.Join(path, entries[i].Name)
	}
	return entries, nil
}

// Info returns the metadata of a single file or directory.
func (c *Client) Info(ctx context.Context, path string) (*models.EntryDetail, error) {
	body := map[string]interface{}{
		"path":     path,
		"password": "",
	}
	var data models.EntryDetail
	if err := c.post(ctx, "/api/fs/get", body, &data); err != nil {
		return nil, err
	}
	data.Path = pathutil.Normalize(path)
	return &data, nil
}

// Search queries the remote index below a parent directory. The index is
// owned by the remote service and may lag behind the actual tree.
func (c *Client) Search(ctx context.Context, keyword, parent string) ([]models.Entry, error) {
	body := map[string]interface{}{
		"parent":   parent,
		"keywords": keyword,
		"scope":    0, // parent directory and descendants
		"page":     1,
		"per_page": 1000,
	}
	var data struct {
		Content []models.SearchResult `json:"content"`
	}
	if err := c.post(ctx, "/api/fs/search", body, &data); err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(data.Content))
	for _, hit := range data.Content {
		entries = append(entries, models.Entry{
			Name:  hit.Name,
			Size:  hit.Size,
			IsDir: hit.IsDir,
			Path:  pathutil.Join(hit.Parent, hit.Name),
		})
	}
	return entries, nil
}

// Link builds a direct download URL for a file. Prefers the public base URL
// when configured, and prefixes the fixed base directory for deployments
// that mount the tree under a sub-path. Unsigned links are returned when the
// server does not hand out signatures.
func (c *Client) Link(ctx context.Context, path string) (string, error) {
	info, err := c.Info(ctx, path)
	if err != nil {
		return "", err
	}
	if info.IsDir {
		return "", fmt.Errorf("%s is a directory", path)
	}

	base := c.baseURL
	if c.creds.PublicURL != "" {
		base = strings.TrimSuffix(c.creds.PublicURL, "/")
	}

	fullPath := pathutil.Normalize(path)
	if c.creds.FixedBaseDirectory != "" {
		fullPath = pathutil.Join(c.creds.FixedBaseDirectory, strings.TrimPrefix(fullPath, "/"))
	}

	encoded := (&url.URL{Path: fullPath}).EscapedPath()
	if info.Sign == "" {
		log.Warn().Str("path", path).Msg("no signature available, returning unsigned link")
		return base + "/d" + encoded, nil
	}
	return base + "/d" + encoded + "?sign=" + info.Sign, nil
}

// Upload streams a file body to targetPath (full remote path including the
// filename). Size must be the exact body length.
func (c *Client) Upload(ctx context.Context, targetPath string, body io.Reader, size int64) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	req, err := nethttp.NewRequestWithContext(ctx, "PUT", c.baseURL+"/api/fs/put", body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("File-Path", (&url.URL{Path: pathutil.Normalize(targetPath)}).EscapedPath())

	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %v: %w", targetPath, err, ErrConnection)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, "/api/fs/put", nil)
}

// Download fetches a file's bytes through its direct link, writing them to w.
// Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	link, err := c.Link(ctx, path)
	if err != nil {
		return 0, err
	}

	req, err := nethttp.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %v: %w", path, err, ErrConnection)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return 0, fmt.Errorf("download %s: status %d", path, resp.StatusCode)
	}
	return io.Copy(w, resp.Body)
}

// Remove deletes named entries from a directory.
func (c *Client) Remove(ctx context.Context, dir string, names []string) error {
	body := map[string]interface{}{
		"dir":   dir,
		"names": names,
	}
	return c.post(ctx, "/api/fs/remove", body, nil)
}

// Mkdir creates a directory. An already-existing directory is not an error;
// the remote reports that case as code 405.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	body := map[string]interface{}{"path": path}
	err := c.post(ctx, "/api/fs/mkdir", body, nil)
	if err != nil && strings.Contains(err.Error(), "remote error 405") {
		return nil
	}
	return err
}

// ArchiveList returns the contents listing of an archive file at path.
// innerPath addresses a directory inside the archive ("/" for its root).
func (c *Client) ArchiveList(ctx context.Context, path, innerPath string) (*models.ArchiveMeta, error) {
	body := map[string]interface{}{
		"path":         path,
		"archive_path": innerPath,
	}
	var data models.ArchiveMeta
	if err := c.post(ctx, "/api/fs/archive/list", body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
