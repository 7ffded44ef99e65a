// Package databricks provides a minimal client for the Databricks workspace
// REST API, limited to the model registry lookups the serving stage needs.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// TokenProvider yields a bearer token for workspace API calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// AADTokenProvider obtains workspace tokens from an AAD credential using the
// Azure Databricks first-party application as the audience.
type AADTokenProvider struct {
	cred  azcore.TokenCredential
	scope string
}

// NewAADTokenProvider constructs a provider for the given credential and the
// Databricks application id.
func NewAADTokenProvider(cred azcore.TokenCredential, appID string) *AADTokenProvider {
	return &AADTokenProvider{cred: cred, scope: appID + "/.default"}
}

// Token fetches an access token scoped to the Databricks application.
func (p *AADTokenProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		return "", fmt.Errorf("acquire databricks access token: %w", err)
	}
	return tok.Token, nil
}

// StaticTokenProvider wraps a pre-issued token, used by tests and PAT flows.
type StaticTokenProvider string

// Token returns the wrapped token.
func (p StaticTokenProvider) Token(context.Context) (string, error) {
	return string(p), nil
}

// Client talks to one Databricks workspace.
type Client struct {
	logger *slog.Logger
	host   string
	tokens TokenProvider
	http   *http.Client
}

// NewClient constructs a workspace client. The host may omit the scheme;
// terraform emits workspace URLs without one.
func NewClient(logger *slog.Logger, host string, tokens TokenProvider) (*Client, error) {
	host = NormalizeWorkspaceURL(host)
	if host == "" {
		return nil, fmt.Errorf("workspace host is empty")
	}
	return &Client{
		logger: logger,
		host:   strings.TrimRight(host, "/"),
		tokens: tokens,
		http:   &http.Client{},
	}, nil
}

// NormalizeWorkspaceURL ensures the workspace URL carries an https scheme.
func NormalizeWorkspaceURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}

// NoRegisteredVersionError indicates the registry holds no versions for the
// expected model, so the serving stage cannot be rendered.
type NoRegisteredVersionError struct {
	// Model is the registered model name that was queried.
	Model string
}

func (e *NoRegisteredVersionError) Error() string {
	if e == nil {
		return "no registered model version"
	}
	return fmt.Sprintf("no registered versions for model %q; register the model before deploying the serving endpoint", e.Model)
}

// IsNoRegisteredVersionError reports whether err indicates an empty registry
// for the queried model.
func IsNoRegisteredVersionError(err error) bool {
	var target *NoRegisteredVersionError
	return errors.As(err, &target)
}

// APIError carries a non-2xx workspace API response.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Body is the raw response body.
	Body string
}

func (e *APIError) Error() string {
	if e == nil {
		return "databricks api error"
	}
	return fmt.Sprintf("databricks api error %d: %s", e.Status, e.Body)
}

// endpointNotFound reports whether err is the workspace's marker for an API
// path that this workspace version does not serve.
func endpointNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Body, "ENDPOINT_NOT_FOUND")
}

// versionsResponse is the shared response shape of the registry lookups.
type versionsResponse struct {
	ModelVersions []struct {
		Version string `json:"version"`
	} `json:"model_versions"`
}

// LatestModelVersion resolves the newest registered version of the named
// model. Workspaces expose the registry under several API paths depending on
// version; each is tried in turn, skipping paths the workspace does not serve.
func (c *Client) LatestModelVersion(ctx context.Context, model string) (string, error) {
	lookups := []struct {
		path    string
		payload map[string]string
	}{
		{"/api/2.0/mlflow/registered-models/get-latest-versions", map[string]string{"name": model}},
		{"/api/2.0/mlflow/model-versions/search", map[string]string{"filter": fmt.Sprintf("name='%s'", model)}},
		{"/api/2.0/preview/mlflow/model-versions/search", map[string]string{"filter": fmt.Sprintf("name='%s'", model)}},
	}

	var lastNotFound error
	for _, lookup := range lookups {
		var resp versionsResponse
		err := c.post(ctx, lookup.path, lookup.payload, &resp)
		if err != nil {
			if endpointNotFound(err) {
				lastNotFound = err
				continue
			}
			return "", err
		}

		latest := 0
		for _, mv := range resp.ModelVersions {
			n, convErr := strconv.Atoi(mv.Version)
			if convErr != nil {
				continue
			}
			if n > latest {
				latest = n
			}
		}
		if latest > 0 {
			c.logger.Debug("resolved latest model version", "model", model, "version", latest)
			return strconv.Itoa(latest), nil
		}
	}

	if lastNotFound != nil && len(lookups) > 0 {
		c.logger.Debug("model registry endpoints unavailable", "model", model, "error", lastNotFound)
	}
	return "", &NoRegisteredVersionError{Model: model}
}

// post issues an authenticated JSON POST and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}
