package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prospector/internal/contextstore"
	"prospector/internal/llm"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// Agent orchestrates the full pipeline for a batch of leads:
// plan research → execute research → per lead: aggregate, qualify, and
// generate copy for leads above the threshold. Data flows one direction per
// phase; aggregation only starts after the whole execution phase has been
// awaited.
type Agent struct {
	campaign   string
	planner    *Planner
	executor   *Executor
	qualifier  *Qualifier
	copygen    *CopyGenerator
	store      *contextstore.Store
	aggregator *contextstore.Aggregator
	threshold  int
	logger     *zap.Logger
}

// Options tunes batch processing.
type Options struct {
	// QualificationThreshold is the minimum score for copy generation.
	QualificationThreshold int
	// MaxConcurrentFetches bounds executor fan-out; zero means unbounded.
	MaxConcurrentFetches int
}

// New wires the pipeline. client drives planning, resolution, and
// qualification; copyClient drives copy generation (pass the same client to
// use one model for everything). Either may be nil, which disables that
// collaborator and leaves the deterministic fallbacks in charge.
func New(campaign string, client, copyClient llm.Client, registry *tools.Registry, store *contextstore.Store, opts Options, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	executor := NewExecutor(registry, store, client, logger)
	executor.SetMaxConcurrentFetches(opts.MaxConcurrentFetches)

	return &Agent{
		campaign:   campaign,
		planner:    NewPlanner(client, registry, logger),
		executor:   executor,
		qualifier:  NewQualifier(campaign, client, logger),
		copygen:    NewCopyGenerator(campaign, copyClient, logger),
		store:      store,
		aggregator: contextstore.NewAggregator(store),
		threshold:  opts.QualificationThreshold,
		logger:     logger,
	}
}

// ProcessLeads runs one batch. It always returns one QualifiedLead per input
// lead, tagged with its task reports and errored operations so callers can
// see partial views, unless a structural failure (unwritable store,
// cancellation) aborts the batch.
func (a *Agent) ProcessLeads(ctx context.Context, leads []types.Lead, cb TaskCallback) (types.BatchResult, error) {
	result := types.BatchResult{RunID: uuid.New().String()[:8]}
	if len(leads) == 0 {
		return result, nil
	}

	a.logger.Info("processing batch",
		zap.String("run", result.RunID),
		zap.Int("leads", len(leads)))

	// Phase 1: plan.
	plan := a.planner.PlanResearch(ctx, leads, a.campaign)

	// Phase 2: execute. Aggregation below must not start before every task
	// has been awaited.
	reports, err := a.executor.ExecuteResearch(ctx, plan, leads, cb)
	if err != nil {
		return result, fmt.Errorf("research execution aborted: %w", err)
	}
	result.Reports = reports

	reportByTask := make(map[int]types.TaskReport, len(reports))
	for _, r := range reports {
		reportByTask[r.TaskID] = r
	}

	// Phase 3: qualify and generate copy, concurrently per lead.
	result.Leads = make([]types.QualifiedLead, len(leads))
	g, gctx := errgroup.WithContext(ctx)
	for i, lead := range leads {
		g.Go(func() error {
			result.Leads[i] = a.processLead(gctx, lead, plan, reportByTask)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("batch cancelled: %w", err)
	}

	a.logger.Info("batch complete",
		zap.String("run", result.RunID),
		zap.Int("qualified", result.QualifiedCount()))
	return result, nil
}

// processLead aggregates one lead's research and produces its verdict. It
// never fails; missing data degrades the score, not the batch.
func (a *Agent) processLead(ctx context.Context, lead types.Lead, plan types.ResearchPlan, reportByTask map[int]types.TaskReport) types.QualifiedLead {
	profileData := a.aggregator.ForLead(lead.ID)
	companyData := map[string]any{}
	if lead.CompanyName != "" {
		companyData = a.aggregator.ForCompany(lead.CompanyName)
	}

	qual := a.qualifier.Qualify(ctx, lead, profileData, companyData)

	var copyOut *types.PersonalizedCopy
	if qual.Score >= a.threshold {
		copyProfile, copyCompany := a.copyContext(ctx, lead, profileData, companyData)
		if generated, err := a.copygen.Generate(ctx, lead, qual, copyProfile, copyCompany); err == nil {
			copyOut = generated
		}
	}

	out := types.QualifiedLead{
		Lead:          lead,
		Qualification: qual,
		Copy:          copyOut,
		Summary:       buildResearchSummary(profileData, companyData),
	}
	for _, task := range plan.TasksForLead(lead.ID) {
		if r, ok := reportByTask[task.ID]; ok {
			out.Reports = append(out.Reports, r)
		}
	}
	for _, data := range []map[string]any{profileData, companyData} {
		for op, payload := range data {
			if _, failed := tools.IsErrorPayload(payload); failed {
				out.ErroredFetches = append(out.ErroredFetches, op)
			}
		}
	}
	return out
}

// copyContext narrows the aggregated research to the records the store's
// relevance selector considers useful for outreach copy. When the selector
// keeps everything (or is not configured) the full views pass through
// untouched.
func (a *Agent) copyContext(ctx context.Context, lead types.Lead, profileData, companyData map[string]any) (map[string]any, map[string]any) {
	candidates := a.store.PointersForLead(lead.ID)
	if lead.CompanyName != "" {
		candidates = append(candidates, a.store.PointersForCompany(lead.CompanyName)...)
	}
	if len(candidates) == 0 {
		return profileData, companyData
	}

	query := fmt.Sprintf("Write personalized outreach copy for %s (%s at %s)", lead.Name, lead.Title, lead.CompanyName)
	selected := a.store.SelectRelevant(ctx, query, candidates)
	if len(selected) == len(candidates) {
		return profileData, companyData
	}

	byAddr := make(map[string]contextstore.Pointer, len(candidates))
	for _, p := range candidates {
		byAddr[p.Address] = p
	}
	keepLead := make(map[string]bool)
	keepCompany := make(map[string]bool)
	for _, addr := range selected {
		p, ok := byAddr[addr]
		if !ok {
			continue
		}
		if p.LeadID != "" {
			keepLead[p.Operation] = true
		} else {
			keepCompany[p.Operation] = true
		}
	}
	return filterOps(profileData, keepLead), filterOps(companyData, keepCompany)
}

func filterOps(data map[string]any, keep map[string]bool) map[string]any {
	out := make(map[string]any, len(keep))
	for op, payload := range data {
		if keep[op] {
			out[op] = payload
		}
	}
	return out
}

// buildResearchSummary condenses aggregated data for human review using the
// typed payload decoders.
func buildResearchSummary(profileData, companyData map[string]any) types.ResearchSummary {
	var summary types.ResearchSummary

	if payload, ok := profileData["get_linkedin_profile"]; ok {
		if profile, err := tools.DecodeProfile(payload); err == nil {
			if profile.Headline != "" {
				summary.ProfileHighlights = append(summary.ProfileHighlights, profile.Headline)
			}
			if len(profile.Experience) > 0 {
				exp := profile.Experience[0]
				summary.ProfileHighlights = append(summary.ProfileHighlights,
					fmt.Sprintf("%s at %s", exp.Title, exp.Company))
			}
		}
	}

	if payload, ok := companyData["get_linkedin_company"]; ok {
		if company, err := tools.DecodeCompany(payload); err == nil {
			if company.CompanySize != "" {
				summary.CompanyHighlights = append(summary.CompanyHighlights, "Size: "+company.CompanySize)
			}
			if company.Industry != "" {
				summary.CompanyHighlights = append(summary.CompanyHighlights, "Industry: "+company.Industry)
			}
		}
	}

	if payload, ok := profileData["get_linkedin_activity"]; ok {
		if activity, err := tools.DecodeActivity(payload); err == nil {
			for _, post := range truncatePosts(activity.Posts, 2) {
				summary.RecentActivity = append(summary.RecentActivity, clip(post.Text, 100)+"...")
			}
		}
	}

	if summary.ProfileHighlights == nil {
		summary.ProfileHighlights = []string{"No profile data"}
	}
	if summary.CompanyHighlights == nil {
		summary.CompanyHighlights = []string{"No company data"}
	}
	if summary.RecentActivity == nil {
		summary.RecentActivity = []string{"No recent activity"}
	}
	return summary
}
