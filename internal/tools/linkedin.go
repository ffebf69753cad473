package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
)

const (
	freshLinkedInHost = "fresh-linkedin-scraper-api.p.rapidapi.com"
	linkedInDataHost  = "linkedin-data-api.p.rapidapi.com"
)

var usernameRe = regexp.MustCompile(`linkedin\.com/in/([^/?]+)`)

// ExtractUsername pulls the username out of a LinkedIn profile URL. Inputs
// that do not look like profile URLs are assumed to already be usernames.
func ExtractUsername(linkedinURL string) string {
	if m := usernameRe.FindStringSubmatch(linkedinURL); m != nil {
		return m[1]
	}
	return linkedinURL
}

// linkedInClient calls the RapidAPI LinkedIn scraper endpoints.
type linkedInClient struct {
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func newLinkedInClient(apiKey string, logger *zap.Logger) *linkedInClient {
	return &linkedInClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// get performs one RapidAPI GET and decodes the JSON body.
func (c *linkedInClient) get(ctx context.Context, host, path string, params url.Values) (map[string]any, error) {
	u := fmt.Sprintf("https://%s%s?%s", host, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return data, nil
}

// apiFailure inspects the scraper's in-body status fields.
func apiFailure(data map[string]any) (string, bool) {
	if msg, ok := data["error"]; ok {
		return fmt.Sprintf("%v", msg), true
	}
	if success, ok := data["success"].(bool); ok && !success {
		return fmt.Sprintf("%v", data["message"]), true
	}
	return "", false
}

func (c *linkedInClient) fetchProfile(ctx context.Context, args map[string]any) map[string]any {
	if c.apiKey == "" {
		return ErrorPayload("RAPIDAPI_KEY not configured; set it to enable LinkedIn lookups")
	}
	linkedinURL, _ := args["linkedin_url"].(string)
	username := ExtractUsername(linkedinURL)

	data, err := c.get(ctx, freshLinkedInHost, "/api/v1/user/profile", url.Values{"username": {username}})
	if err != nil {
		return ErrorPayload("failed to fetch profile: %v", err)
	}
	if msg, failed := apiFailure(data); failed {
		return ErrorPayload("LinkedIn API error: %s", msg)
	}
	return data
}

func (c *linkedInClient) fetchActivity(ctx context.Context, args map[string]any) map[string]any {
	if c.apiKey == "" {
		return ErrorPayload("RAPIDAPI_KEY not configured; set it to enable LinkedIn lookups")
	}
	linkedinURL, _ := args["linkedin_url"].(string)
	username := ExtractUsername(linkedinURL)

	// Posts are keyed by URN, so fetch the profile first to resolve it.
	profile, err := c.get(ctx, freshLinkedInHost, "/api/v1/user/profile", url.Values{"username": {username}})
	if err != nil {
		return ErrorPayload("could not resolve profile URN: %v", err)
	}
	if msg, failed := apiFailure(profile); failed {
		return ErrorPayload("could not resolve profile URN: %s", msg)
	}
	inner, _ := profile["data"].(map[string]any)
	urn, _ := inner["urn"].(string)
	if urn == "" {
		return ErrorPayload("profile does not contain a URN")
	}

	data, err := c.get(ctx, freshLinkedInHost, "/api/v1/user/posts", url.Values{"urn": {urn}, "page": {"1"}})
	if err != nil {
		return ErrorPayload("failed to fetch activity: %v", err)
	}
	if msg, failed := apiFailure(data); failed {
		return ErrorPayload("LinkedIn API error: %s", msg)
	}
	return data
}

func (c *linkedInClient) fetchCompany(ctx context.Context, args map[string]any) map[string]any {
	if c.apiKey == "" {
		return ErrorPayload("RAPIDAPI_KEY not configured; set it to enable LinkedIn lookups")
	}
	company, _ := args["company_name"].(string)

	data, err := c.get(ctx, linkedInDataHost, "/get-company", url.Values{"company": {company}})
	if err != nil {
		return ErrorPayload("failed to fetch company: %v", err)
	}
	if msg, failed := apiFailure(data); failed {
		return ErrorPayload("LinkedIn API error: %s", msg)
	}
	return data
}

func (c *linkedInClient) fetchCompanyPosts(ctx context.Context, args map[string]any) map[string]any {
	if c.apiKey == "" {
		return ErrorPayload("RAPIDAPI_KEY not configured; set it to enable LinkedIn lookups")
	}
	company, _ := args["company_name"].(string)

	data, err := c.get(ctx, linkedInDataHost, "/get-company-posts", url.Values{"company": {company}})
	if err != nil {
		return ErrorPayload("failed to fetch company posts: %v", err)
	}
	if msg, failed := apiFailure(data); failed {
		return ErrorPayload("LinkedIn API error: %s", msg)
	}
	return data
}
