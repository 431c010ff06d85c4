package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type githubBackend struct {
	client  *http.Client
	apiURL  string
	repo    string // owner/name
	branch  string
	dir     string
	message string
}

// NewGitHub archives through the repository contents API.
func NewGitHub(ctx context.Context, token, repo, branch, dir string, timeout time.Duration, log *slog.Logger) *Saver {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client.Timeout = timeout
	return newSaver(&githubBackend{
		client:  client,
		apiURL:  "https://api.github.com",
		repo:    repo,
		branch:  branch,
		dir:     strings.Trim(dir, "/"),
		message: "Add article summary",
	}, log)
}

type githubPut struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
}

type githubPutResponse struct {
	Content struct {
		HTMLURL string `json:"html_url"`
	} `json:"content"`
}

func (g *githubBackend) put(ctx context.Context, name string, body []byte) (string, error) {
	p := path.Join(g.dir, name)
	payload, err := json.Marshal(githubPut{
		Message: g.message + ": " + path.Base(name),
		Content: base64.StdEncoding.EncodeToString(body),
		Branch:  g.branch,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", g.apiURL, g.repo, (&url.URL{Path: p}).EscapedPath())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// the API answers 422 when the path exists and no sha was given
		return "", ErrCollision
	case resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("github contents API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out githubPutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode github response: %w", err)
	}
	if out.Content.HTMLURL == "" {
		return fmt.Sprintf("https://github.com/%s/blob/%s/%s", g.repo, g.branch, p), nil
	}
	return out.Content.HTMLURL, nil
}
