package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"prospector/internal/llm"
	"prospector/internal/types"
)

// CopyGenerator writes personalized outreach copy for leads that cleared the
// qualification threshold. A generation fault leaves the lead without copy;
// it never fails the batch.
type CopyGenerator struct {
	campaign string
	llm      llm.Client
	logger   *zap.Logger
}

// NewCopyGenerator creates a generator for one campaign. The client here is
// typically a stronger model than the planning/qualification one.
func NewCopyGenerator(campaign string, client llm.Client, logger *zap.Logger) *CopyGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CopyGenerator{campaign: campaign, llm: client, logger: logger}
}

// Generate produces outreach copy for one qualified lead.
func (g *CopyGenerator) Generate(ctx context.Context, lead types.Lead, qual types.Qualification, profileData, companyData map[string]any) (*types.PersonalizedCopy, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("no copy model configured")
	}

	prompt := fmt.Sprintf(`Lead Information:
Name: %s
Title: %s
Company: %s

Qualification:
Score: %d/100 (%s priority)
Fit reasons: %s
Key insights: %s

Profile Data:
%s

Company Data:
%s

Write personalized outreach copy for this lead: an email subject line, a short
email body, a LinkedIn message, and talking points for a call.`,
		lead.Name, lead.Title, lead.CompanyName,
		qual.Score, qual.Priority,
		strings.Join(qual.FitReasons, "; "),
		strings.Join(qual.KeyInsights, "; "),
		FormatProfileData(profileData), FormatCompanyData(companyData))

	system := fillPrompt(copySystemPrompt, map[string]string{"campaign_context": g.campaign})

	var out types.PersonalizedCopy
	if err := llm.CompleteJSON(ctx, g.llm, system, prompt, &out); err != nil {
		g.logger.Warn("copy generation failed",
			zap.String("lead", lead.ID),
			zap.Error(err))
		return nil, err
	}
	return &out, nil
}
