package repoclient // import "github.com/seafhttp/upload/repoclient"

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Sentinel errors a Client implementation should return (wrapped, via
// errors.Wrap, is fine — handlers.go matches them with errors.Is) so the
// upload and update handlers can map them to the right ErrorCode.
// HTTPClient derives them from the back end's untyped error text by
// message substring.
var (
	ErrInvalidFilename = errors.New("Invalid filename")
	ErrFileExists      = errors.New("file already exists")
	ErrFileNotExist    = errors.New("file does not exist")
)

// Client is the back-end RPC surface named in spec §6: access-token
// resolution, quota, file ingest, and the directory listing used for
// filename de-duplication. Everything else about the repository object
// model is out of scope here.
type Client interface {
	// CheckAccessToken resolves an opaque upload token to the repo and
	// user it authorizes.
	CheckAccessToken(ctx context.Context, token string) (repoID, user string, err error)

	// CheckQuota fails if repoID's owner has no space left.
	CheckQuota(ctx context.Context, repoID string) error

	// ListDir returns the names of entries directly under parentDir,
	// used to avoid filename collisions before PostFile.
	ListDir(ctx context.Context, repoID, parentDir string) ([]string, error)

	// PostFile ingests the file at tmpPath as a new object named name
	// under parentDir.
	PostFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error

	// PutFile ingests the file at tmpPath as an update to the existing
	// object named name under parentDir.
	PutFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error
}

// HTTPClient implements Client against a seafile-shaped HTTP+JSON API.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	APIToken   string // sent as the seafile "Authorization: Token <v>" header
}

// NewHTTPClient returns a Client with a sane default timeout. Callers
// that need to tune it further can still set hc.HTTPClient afterwards.
func NewHTTPClient(baseURL, apiToken string) *HTTPClient {
	return &HTTPClient{
		BaseURL:  baseURL,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+p, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Token "+c.APIToken)
	}
	return req, nil
}

// CheckAccessToken resolves token via GET /api2/upload-tokens/<token>/.
func (c *HTTPClient) CheckAccessToken(ctx context.Context, token string) (string, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api2/upload-tokens/"+url.PathEscape(token)+"/", nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", "", errors.Wrap(err, "checking access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return "", "", errors.New("unknown or expired token")
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", errors.Errorf("check_access_token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		RepoID string `json:"repo_id"`
		User   string `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", errors.Wrap(err, "decoding check_access_token response")
	}
	return body.RepoID, body.User, nil
}

// CheckQuota calls GET /api2/repos/<id>/quota-check/.
func (c *HTTPClient) CheckQuota(ctx context.Context, repoID string) error {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api2/repos/%s/quota-check/", url.PathEscape(repoID)), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "checking quota")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusInsufficientStorage {
		return errors.New("quota exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("check_quota: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ListDir calls GET /api2/repos/<id>/dir/?p=<parentDir>.
func (c *HTTPClient) ListDir(ctx context.Context, repoID, parentDir string) ([]string, error) {
	q := url.Values{"p": {parentDir}}
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api2/repos/%s/dir/?%s", url.PathEscape(repoID), q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "listing directory")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // an absent directory has no colliding entries
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("list_dir: unexpected status %d", resp.StatusCode)
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decoding dir listing")
	}
	names := make([]string, len(entries))
	for i := range entries {
		names[i] = entries[i].Name
	}
	return names, nil
}

// PostFile uploads tmpPath as a new object via POST /api2/repos/<id>/upload-api/.
func (c *HTTPClient) PostFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error {
	return c.sendFile(ctx, fmt.Sprintf("/api2/repos/%s/upload-api/", url.PathEscape(repoID)), tmpPath, parentDir, name, user)
}

// PutFile uploads tmpPath as a replacement for an existing object via
// POST /api2/repos/<id>/update-api/.
func (c *HTTPClient) PutFile(ctx context.Context, repoID, tmpPath, parentDir, name, user string) error {
	return c.sendFile(ctx, fmt.Sprintf("/api2/repos/%s/update-api/", url.PathEscape(repoID)), tmpPath, parentDir, name, user)
}

func (c *HTTPClient) sendFile(ctx context.Context, route, tmpPath, parentDir, name, user string) error {
	f, err := os.Open(tmpPath)
	if err != nil {
		return errors.Wrap(err, "opening temp file for ingest")
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("parent_dir", parentDir); err != nil {
		return err
	}
	if err := mw.WriteField("user", user); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return errors.Wrap(err, "copying temp file into ingest request")
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, route, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "ingest RPC")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	msg, _ := io.ReadAll(resp.Body)
	switch {
	case bytes.Contains(msg, []byte(ErrInvalidFilename.Error())):
		return ErrInvalidFilename
	case bytes.Contains(msg, []byte(ErrFileExists.Error())):
		return ErrFileExists
	case bytes.Contains(msg, []byte(ErrFileNotExist.Error())):
		return ErrFileNotExist
	default:
		return errors.Errorf("ingest RPC: status %d: %s", resp.StatusCode, string(msg))
	}
}
