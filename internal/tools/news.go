package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// newsClient serves company news and funding lookups.
//
// TODO: back these with a real provider (NewsAPI for articles, Crunchbase for
// funding). Until then they return representative canned data so the rest of
// the pipeline can be exercised end to end.
type newsClient struct {
	logger *zap.Logger
}

func newNewsClient(logger *zap.Logger) *newsClient {
	return &newsClient{logger: logger}
}

func (c *newsClient) fetchNews(ctx context.Context, args map[string]any) map[string]any {
	company, _ := args["company_name"].(string)
	if company == "" {
		return ErrorPayload("company_name is required")
	}
	c.logger.Debug("serving canned company news", zap.String("company", company))
	return map[string]any{
		"articles": []any{
			map[string]any{
				"title":   fmt.Sprintf("%s raises $50M Series B", company),
				"source":  "TechCrunch",
				"date":    "2024-01-20",
				"summary": "Leading AI startup announces major funding round...",
			},
			map[string]any{
				"title":   fmt.Sprintf("%s launches new product", company),
				"source":  "VentureBeat",
				"date":    "2024-01-15",
				"summary": "Company unveils revolutionary AI-powered tool...",
			},
		},
	}
}

func (c *newsClient) fetchFunding(ctx context.Context, args map[string]any) map[string]any {
	company, _ := args["company_name"].(string)
	if company == "" {
		return ErrorPayload("company_name is required")
	}
	c.logger.Debug("serving canned funding data", zap.String("company", company))
	return map[string]any{
		"total_funding": "$75M",
		"last_round": map[string]any{
			"type":   "Series B",
			"amount": "$50M",
			"date":   "2024-01-20",
		},
		"investors": []any{"Sequoia Capital", "Andreessen Horowitz"},
	}
}
