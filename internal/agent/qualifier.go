package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"prospector/internal/llm"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// Qualifier scores leads against the campaign context using aggregated
// research data. Qualification never fails: a collaborator fault degrades to
// a fixed low-confidence verdict flagged for manual review.
type Qualifier struct {
	campaign string
	llm      llm.Client
	logger   *zap.Logger
}

// NewQualifier creates a qualifier for one campaign.
func NewQualifier(campaign string, client llm.Client, logger *zap.Logger) *Qualifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Qualifier{campaign: campaign, llm: client, logger: logger}
}

// Qualify analyzes one lead against its aggregated profile and company data.
func (q *Qualifier) Qualify(ctx context.Context, lead types.Lead, profileData, companyData map[string]any) types.Qualification {
	if q.llm == nil {
		return fallbackQualification()
	}

	prompt := fmt.Sprintf(`Lead Information:
Name: %s
Title: %s
Company: %s
LinkedIn: %s

Profile Data:
%s

Company Data:
%s

Analyze this lead and provide:
1. Qualification score (0-100)
2. Specific reasons they're a good fit
3. Any red flags or concerns
4. Actionable insights for personalization
5. Priority level (high/medium/low)`,
		lead.Name, lead.Title, lead.CompanyName, lead.LinkedInURL,
		FormatProfileData(profileData), FormatCompanyData(companyData))

	system := fillPrompt(qualificationSystemPrompt, map[string]string{"campaign_context": q.campaign})

	var out types.Qualification
	if err := llm.CompleteJSON(ctx, q.llm, system, prompt, &out); err != nil {
		q.logger.Warn("qualification failed, using fallback verdict",
			zap.String("lead", lead.ID),
			zap.Error(err))
		return fallbackQualification()
	}
	return normalizeQualification(out)
}

func fallbackQualification() types.Qualification {
	return types.Qualification{
		Score:      30,
		FitReasons: []string{"Unable to complete qualification analysis"},
		RedFlags:   []string{"Analysis failed - needs manual review"},
		Priority:   types.PriorityLow,
	}
}

// normalizeQualification clamps the score and repairs an out-of-vocabulary
// priority from the score bands.
func normalizeQualification(qual types.Qualification) types.Qualification {
	if qual.Score < 0 {
		qual.Score = 0
	}
	if qual.Score > 100 {
		qual.Score = 100
	}
	switch qual.Priority {
	case types.PriorityHigh, types.PriorityMedium, types.PriorityLow:
	default:
		switch {
		case qual.Score >= 80:
			qual.Priority = types.PriorityHigh
		case qual.Score >= 50:
			qual.Priority = types.PriorityMedium
		default:
			qual.Priority = types.PriorityLow
		}
	}
	return qual
}

// FormatProfileData renders aggregated lead-scoped payloads as prompt text.
// Error-marked operations are surfaced as unavailable-data lines so the model
// knows the view is partial.
func FormatProfileData(profileData map[string]any) string {
	var sections []string

	if payload, ok := profileData["get_linkedin_profile"]; ok {
		if msg, failed := tools.IsErrorPayload(payload); failed {
			sections = append(sections, "Profile data unavailable: "+msg)
		} else if profile, err := tools.DecodeProfile(payload); err == nil {
			sections = append(sections, "Headline: "+orNA(profile.Headline))
			sections = append(sections, "Location: "+orNA(profile.Location))
			sections = append(sections, "Summary: "+orNA(profile.Summary))
			if len(profile.Experience) > 0 {
				sections = append(sections, "\nRecent Experience:")
				for _, exp := range truncateExp(profile.Experience, 2) {
					sections = append(sections, fmt.Sprintf("  - %s at %s (%s)", exp.Title, exp.Company, exp.Duration))
				}
			}
			if len(profile.Skills) > 0 {
				skills := profile.Skills
				if len(skills) > 10 {
					skills = skills[:10]
				}
				sections = append(sections, "\nSkills: "+strings.Join(skills, ", "))
			}
		}
	}

	if payload, ok := profileData["get_linkedin_activity"]; ok {
		if msg, failed := tools.IsErrorPayload(payload); failed {
			sections = append(sections, "\nActivity data unavailable: "+msg)
		} else if activity, err := tools.DecodeActivity(payload); err == nil && len(activity.Posts) > 0 {
			sections = append(sections, "\nRecent Posts:")
			for _, post := range truncatePosts(activity.Posts, 3) {
				sections = append(sections, fmt.Sprintf("  - %s... (%s)", clip(post.Text, 150), post.Date))
			}
		}
	}

	if len(sections) == 0 {
		return "No profile data available - LinkedIn lookup may have failed"
	}
	return strings.Join(sections, "\n")
}

// FormatCompanyData renders aggregated company-scoped payloads as prompt text.
func FormatCompanyData(companyData map[string]any) string {
	var sections []string

	if payload, ok := companyData["get_linkedin_company"]; ok {
		if msg, failed := tools.IsErrorPayload(payload); failed {
			sections = append(sections, "Company data unavailable: "+msg)
		} else if company, err := tools.DecodeCompany(payload); err == nil {
			sections = append(sections, "Description: "+orNA(company.Description))
			sections = append(sections, "Industry: "+orNA(company.Industry))
			sections = append(sections, "Size: "+orNA(company.CompanySize))
			sections = append(sections, "Headquarters: "+orNA(company.Headquarters))
			if len(company.Specialties) > 0 {
				sections = append(sections, "Specialties: "+strings.Join(company.Specialties, ", "))
			}
		}
	}

	if payload, ok := companyData["get_company_posts"]; ok {
		if _, failed := tools.IsErrorPayload(payload); !failed {
			if activity, err := tools.DecodeActivity(payload); err == nil && len(activity.Posts) > 0 {
				sections = append(sections, "\nRecent Company Posts:")
				for _, post := range truncatePosts(activity.Posts, 3) {
					sections = append(sections, fmt.Sprintf("  - %s... (%s)", clip(post.Text, 150), post.Date))
				}
			}
		}
	}

	if payload, ok := companyData["get_company_news"]; ok {
		if _, failed := tools.IsErrorPayload(payload); !failed {
			if news, err := tools.DecodeNews(payload); err == nil && len(news.Articles) > 0 {
				sections = append(sections, "\nRecent News:")
				for i, article := range news.Articles {
					if i >= 3 {
						break
					}
					sections = append(sections, fmt.Sprintf("  - %s (%s, %s)", article.Title, article.Source, article.Date))
				}
			}
		}
	}

	if len(sections) == 0 {
		return "No company data available"
	}
	return strings.Join(sections, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateExp(exp []tools.Experience, n int) []tools.Experience {
	if len(exp) > n {
		return exp[:n]
	}
	return exp
}

func truncatePosts(posts []tools.Post, n int) []tools.Post {
	if len(posts) > n {
		return posts[:n]
	}
	return posts
}
