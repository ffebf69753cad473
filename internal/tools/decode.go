package tools

import (
	"encoding/json"
	"fmt"
)

// Typed views of fetch payloads. These decoders are the one place raw fetch
// results are given structure; consumers of aggregated context work with
// these types instead of sniffing map keys.

// Profile is a decoded LinkedIn profile payload.
type Profile struct {
	Headline   string       `json:"headline"`
	Location   string       `json:"location"`
	Summary    string       `json:"summary"`
	Experience []Experience `json:"experience"`
	Skills     []string     `json:"skills"`
}

// Experience is one role on a profile.
type Experience struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Duration string `json:"duration"`
}

// Post is one LinkedIn post.
type Post struct {
	Text  string `json:"text"`
	Date  string `json:"date"`
	Likes int    `json:"likes"`
}

// Activity is a decoded recent-posts payload.
type Activity struct {
	Posts []Post `json:"posts"`
}

// Company is a decoded company-page payload.
type Company struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Industry     string   `json:"industry"`
	CompanySize  string   `json:"company_size"`
	Headquarters string   `json:"headquarters"`
	Founded      string   `json:"founded"`
	Specialties  []string `json:"specialties"`
}

// NewsArticle is one article from a company news payload.
type NewsArticle struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
}

// News is a decoded company-news payload.
type News struct {
	Articles []NewsArticle `json:"articles"`
}

// DecodeProfile decodes a get_linkedin_profile payload.
func DecodeProfile(v any) (*Profile, error) {
	var out Profile
	if err := decodePayload(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeActivity decodes a get_linkedin_activity payload.
func DecodeActivity(v any) (*Activity, error) {
	var out Activity
	if err := decodePayload(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeCompany decodes a get_linkedin_company payload.
func DecodeCompany(v any) (*Company, error) {
	var out Company
	if err := decodePayload(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeNews decodes a get_company_news payload.
func DecodeNews(v any) (*News, error) {
	var out News
	if err := decodePayload(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodePayload round-trips an opaque payload into a typed struct. Error
// markers are rejected up front, and a {"data": ...} envelope (as returned by
// the scraper API) is unwrapped before decoding.
func decodePayload(v any, out any) error {
	if msg, failed := IsErrorPayload(v); failed {
		return fmt.Errorf("payload is an error marker: %s", msg)
	}
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["data"]; ok {
			v = inner
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("payload is not JSON-serializable: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("payload does not match expected shape: %w", err)
	}
	return nil
}
