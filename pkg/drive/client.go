// Package drive is a minimal Google Drive client for the backup flow. It
// authenticates as a service account via a signed JWT assertion and speaks
// the Drive v3 REST API directly.
package drive

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultAPIBase    = "https://www.googleapis.com/drive/v3"
	defaultUploadBase = "https://www.googleapis.com/upload/drive/v3"

	driveScope    = "https://www.googleapis.com/auth/drive.file"
	jwtBearerType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// tokenSlack refreshes the cached token this long before expiry.
	tokenSlack = 2 * time.Minute
)

// ErrFileNotFound is returned when no file matches the lookup name.
var ErrFileNotFound = errors.New("drive: file not found")

// Token is a short-lived Drive access token.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Client talks to the Drive API as one service account.
type Client struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
	httpClient  *http.Client

	tokenURL   string
	apiBase    string
	uploadBase string

	mu    sync.Mutex
	token Token

	now func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithEndpoints overrides API endpoints, mainly for tests.
func WithEndpoints(tokenURL, apiBase, uploadBase string) Option {
	return func(c *Client) {
		c.tokenURL = tokenURL
		c.apiBase = apiBase
		c.uploadBase = uploadBase
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient loads the service-account private key and builds a client.
func NewClient(keyPath, clientEmail string, opts ...Option) (*Client, error) {
	clientEmail = strings.TrimSpace(clientEmail)
	if clientEmail == "" {
		return nil, errors.New("drive client email is required")
	}
	key, err := loadRSAPrivateKeyFromPEMFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load drive private key: %w", err)
	}
	c := &Client{
		clientEmail: clientEmail,
		privateKey:  key,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		tokenURL:    defaultTokenURL,
		apiBase:     defaultAPIBase,
		uploadBase:  defaultUploadBase,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticate exchanges a signed JWT assertion for an access token.
func (c *Client) Authenticate(ctx context.Context) (Token, error) {
	now := c.now().UTC()
	claims := jwt.MapClaims{
		"iss":   c.clientEmail,
		"scope": driveScope,
		"aud":   c.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return Token{}, fmt.Errorf("sign drive assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerType)
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("request drive token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("drive token error: %s", strings.TrimSpace(string(body)))
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Token{}, fmt.Errorf("decode drive token: %w", err)
	}
	if payload.AccessToken == "" {
		return Token{}, errors.New("drive token response missing access_token")
	}
	return Token{
		AccessToken: payload.AccessToken,
		Expiry:      now.Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// accessToken returns a cached token, refreshing when close to expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.AccessToken != "" && c.now().Before(c.token.Expiry.Add(-tokenSlack)) {
		return c.token.AccessToken, nil
	}
	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token.AccessToken, nil
}

// FindFileByName returns the id of the newest non-trashed file with the given
// name, scoped to folderID when set. ErrFileNotFound when nothing matches.
func (c *Client) FindFileByName(ctx context.Context, name, folderID string) (string, error) {
	query := fmt.Sprintf("name = '%s' and trashed = false", strings.ReplaceAll(name, "'", `\'`))
	if folderID != "" {
		query += fmt.Sprintf(" and '%s' in parents", folderID)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("orderBy", "modifiedTime desc")
	params.Set("pageSize", "1")
	params.Set("fields", "files(id,name)")

	var payload struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/files?"+params.Encode(), "", nil, &payload); err != nil {
		return "", err
	}
	if len(payload.Files) == 0 {
		return "", ErrFileNotFound
	}
	return payload.Files[0].ID, nil
}

// Upload creates a new file with metadata and content in one multipart call.
func (c *Client) Upload(ctx context.Context, name, folderID, contentType string, data []byte) (string, error) {
	metadata := map[string]any{"name": name}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}
	body, boundary, err := multipartRelated(metadata, contentType, data)
	if err != nil {
		return "", err
	}
	var payload struct {
		ID string `json:"id"`
	}
	endpoint := c.uploadBase + "/files?uploadType=multipart&fields=id"
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "multipart/related; boundary="+boundary, body, &payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", errors.New("drive upload response missing file id")
	}
	return payload.ID, nil
}

// Update replaces an existing file's content in place.
func (c *Client) Update(ctx context.Context, fileID, contentType string, data []byte) error {
	body, boundary, err := multipartRelated(map[string]any{}, contentType, data)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/files/%s?uploadType=multipart&fields=id", c.uploadBase, url.PathEscape(fileID))
	return c.doJSON(ctx, http.MethodPatch, endpoint, "multipart/related; boundary="+boundary, body, nil)
}

// Download fetches a file's raw content.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/files/%s?alt=media", c.apiBase, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive download: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drive api error: %s", strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("drive request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrFileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("drive api error: %s", strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode drive response: %w", err)
	}
	return nil
}

// multipartRelated builds the two-part body the Drive upload endpoints take:
// a JSON metadata part followed by the media part.
func multipartRelated(metadata map[string]any, contentType string, data []byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	mediaHeader.Set("Content-Type", contentType)
	mediaPart, err := w.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := mediaPart.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.Boundary(), nil
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}
