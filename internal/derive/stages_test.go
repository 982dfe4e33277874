package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/stagegate/internal/contracts"
)

func TestReviewScore(t *testing.T) {
	out := ReviewScore(map[string]any{"critiques": []any{
		map[string]any{"score": 70},
		map[string]any{"score": 81},
		map[string]any{"note": "unscored"},
	}})
	assert.Equal(t, map[string]any{"compositeScore": 76}, out)
	assert.Nil(t, ReviewScore(map[string]any{"compositeScore": 10, "critiques": []any{map[string]any{"score": 90}}}))
	assert.Nil(t, ReviewScore(map[string]any{}))
}

func TestValidationScore(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		score    any
		decision string
	}{
		{
			name: "pass",
			raw: map[string]any{
				"marketFit": 80, "customerNeed": 70, "momentum": 60,
				"revenuePotential": 90, "competitiveBarrier": 65, "executionFeasibility": 75,
			},
			score:    73,
			decision: "pass",
		},
		{name: "revise", raw: map[string]any{"marketFit": 55, "momentum": 50}, score: 53, decision: "revise"},
		{name: "kill from emitted score", raw: map[string]any{"overallScore": 20}, decision: "kill"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := ValidationScore(test.raw)
			require.NotNil(t, out)
			assert.Equal(t, test.decision, out["decision"])
			if test.score != nil {
				assert.Equal(t, test.score, out["overallScore"])
			}
		})
	}
	assert.Nil(t, ValidationScore(map[string]any{}))
}

func TestCompetitiveHandoff(t *testing.T) {
	out := CompetitiveHandoff(map[string]any{"competitors": []any{
		map[string]any{"name": "A", "threat": "High", "pricingModel": "subscription"},
		map[string]any{"name": "B", "threat": "L", "pricingModel": "Freemium"},
		map[string]any{"name": "C", "threat": "h", "pricingModel": "subscription"},
	}})
	handoff := out["stage5Handoff"].(map[string]any)
	assert.Equal(t, 3, handoff["competitorCount"])
	assert.Equal(t, []any{"freemium", "subscription"}, handoff["pricingModels"])
	assert.Equal(t, map[string]any{"H": 2, "M": 0, "L": 1}, handoff["threatSummary"])
}

func TestProfitability(t *testing.T) {
	out := Profitability(map[string]any{
		"initialInvestment": 100000,
		"year1":             map[string]any{"revenue": 50000, "cogs": 20000, "opex": 40000},
		"year2":             map[string]any{"revenue": 150000, "cogs": 45000, "opex": 50000},
		"year3":             map[string]any{"revenue": 300000, "cogs": 90000, "opex": 60000},
	})
	require.NotNil(t, out)
	assert.Equal(t, 195000.0, out["netProfit3y"])
	assert.Equal(t, 0.95, out["roi3y"])
	assert.Equal(t, 3, out["breakEvenYear"])
	assert.Equal(t, -10000.0, out["year1"].(map[string]any)["netProfit"])
	assert.Nil(t, Profitability(map[string]any{"year1": map[string]any{}}))
}

func TestRiskScores(t *testing.T) {
	out := RiskScores(map[string]any{"risks": []any{
		map[string]any{"title": "Supply", "severity": 4, "probability": 5},
		map[string]any{"title": "Churn", "severity": 2, "probability": 3},
	}})
	assert.Equal(t, 13.0, out["aggregate_risk_score"])
	assert.Equal(t, 52.0, out["normalized_risk_score"])
	risks := out["risks"].([]any)
	assert.Equal(t, 20.0, risks[0].(map[string]any)["score"])
	assert.Nil(t, RiskScores(map[string]any{"risks": []any{}}))
}

func TestRevenueMetrics(t *testing.T) {
	out := RevenueMetrics(map[string]any{
		"tiers":              []any{map[string]any{"price": 40}, map[string]any{"price": 60}},
		"gross_margin_pct":   80,
		"churn_rate_monthly": 4,
		"cac":                200,
	})
	assert.Equal(t, 50.0, out["arpa"])
	assert.Equal(t, 1000.0, out["ltv"])
	assert.Equal(t, 5.0, out["ltv_cac_ratio"])
	assert.Equal(t, 5.0, out["payback_months"])

	kept := RevenueMetrics(map[string]any{"arpa": 100, "gross_margin_pct": 50})
	_, overwritten := kept["arpa"]
	assert.False(t, overwritten)
	assert.Nil(t, RevenueMetrics(map[string]any{"tiers": []any{}}))
}

func TestChannelBudget(t *testing.T) {
	out := ChannelBudget(map[string]any{"channels": []any{
		map[string]any{"name": "Search", "monthly_budget": 1000, "expected_cac": 0},
		map[string]any{"name": "Social", "monthly_budget": 0, "expected_cac": 80},
		map[string]any{"name": "Events", "monthly_budget": 2500, "expected_cac": 120},
	}})
	assert.Equal(t, 3500.0, out["total_monthly_budget"])
	assert.Equal(t, 2, out["active_channels"])
	assert.Equal(t, 100.0, out["avg_cac"])
}

func TestCountingDerivations(t *testing.T) {
	priorities := RoadmapPriorities(map[string]any{"milestones": []any{
		map[string]any{"priority": "now"}, map[string]any{"priority": "Next"}, map[string]any{"priority": "now"}, map[string]any{},
	}})
	assert.Equal(t, map[string]any{"now": 2, "next": 1, "later": 0}, priorities["priorityCounts"])
	assert.Equal(t, 4, priorities["milestone_count"])

	register := RiskRegister(map[string]any{"risks": []any{
		map[string]any{"severity": "critical"}, map[string]any{"severity": "low"}, map[string]any{"severity": "LOW"},
	}})
	assert.Equal(t, 3, register["totalRisks"])
	assert.Equal(t, map[string]any{"critical": 1, "high": 0, "medium": 0, "low": 2}, register["severityBreakdown"])
}

func TestRunway(t *testing.T) {
	var projections []any
	for month := 1; month <= 6; month++ {
		projections = append(projections, map[string]any{"month": month, "revenue": 1000 * month, "costs": 500 * month})
	}
	out := Runway(map[string]any{"initial_capital": 100000, "monthly_burn_rate": 5000, "revenue_projections": projections})
	assert.Equal(t, 20.0, out["runway_months"])
	assert.Equal(t, 21000.0, out["total_projected_revenue"])
	assert.Equal(t, 10500.0, out["total_projected_costs"])
	assert.Equal(t, 1, out["break_even_month"])

	recovering := Runway(map[string]any{"initial_capital": 10000, "revenue_projections": []any{
		map[string]any{"month": 1, "revenue": 1000, "costs": 4000},
		map[string]any{"month": 2, "revenue": 3000, "costs": 4000},
		map[string]any{"month": 3, "revenue": 6000, "costs": 4500},
		map[string]any{"month": 4, "revenue": 7000, "costs": 4500},
	}})
	assert.Equal(t, 4, recovering["break_even_month"], "cumulative profit turns non-negative in month 4")

	losing := Runway(map[string]any{"initial_capital": 100000, "revenue_projections": []any{
		map[string]any{"month": 1, "revenue": 100, "costs": 500},
		map[string]any{"month": 2, "revenue": 200, "costs": 600},
	}})
	_, reached := losing["break_even_month"]
	assert.False(t, reached)
	assert.Equal(t, 1100.0, losing["total_projected_costs"])

	unbounded := Runway(map[string]any{"initial_capital": 100000, "monthly_burn_rate": 0})
	_, set := unbounded["runway_months"]
	assert.False(t, set)
	empty := Runway(map[string]any{"initial_capital": 0, "monthly_burn_rate": 0})
	assert.Equal(t, 0.0, empty["runway_months"])
}

func TestRateDerivations(t *testing.T) {
	readiness := Readiness(map[string]any{"readinessItems": []any{
		map[string]any{"status": "complete"}, map[string]any{"status": "complete"}, map[string]any{"status": "pending"},
	}})
	assert.Equal(t, 67, readiness["readinessScore"])

	sprint := SprintTotals(map[string]any{"sprintItems": []any{
		map[string]any{"estimatedLoc": 300, "storyPoints": 3}, map[string]any{"estimatedLoc": 450, "storyPoints": 5},
	}})
	assert.Equal(t, 750, sprint["totalEstimatedLoc"])
	assert.Equal(t, 8.0, sprint["totalStoryPoints"])

	build := BuildCompletion(map[string]any{"tasks": []any{
		map[string]any{"status": "done"}, map[string]any{"status": "blocked"}, map[string]any{"status": "done"}, map[string]any{"status": "todo"},
	}})
	assert.Equal(t, 50.0, build["completionPct"])
	assert.Equal(t, map[string]any{"total": 4, "done": 2, "blocked": 1}, build["sprintCompletion"])

	quality := QualityPassRate(map[string]any{"testSuites": []any{
		map[string]any{"total_tests": 100, "passing_tests": 95}, map[string]any{"total_tests": 60, "passing_tests": 57},
	}})
	assert.Equal(t, 95.0, quality["overallPassRate"])

	review := ReviewPassRate(map[string]any{"integrations": []any{
		map[string]any{"status": "pass"}, map[string]any{"status": "fail"}, map[string]any{"status": "pass"}, map[string]any{"status": "pass"},
	}})
	assert.Equal(t, 75.0, review["passRate"])

	release := ReleaseItems(map[string]any{"releaseItems": []any{
		map[string]any{"name": "R1", "status": "approved"},
		map[string]any{"name": "R2", "status": "pending"},
		map[string]any{"name": "R3", "status": "approved"},
		map[string]any{"name": "R4", "status": "rejected"},
	}})
	assert.Equal(t, 4, release["total_items"])
	assert.Equal(t, 2, release["approved_items"])
	assert.Equal(t, false, release["all_approved"])
	assert.Equal(t, false, ReleaseItems(map[string]any{"releaseItems": []any{}})["all_approved"])
	assert.Equal(t, true, ReleaseItems(map[string]any{"releaseItems": []any{
		map[string]any{"status": "approved"}, map[string]any{"status": "Approved"},
	}})["all_approved"])
}

func metric(value, target int) map[string]any {
	return map[string]any{"name": "m", "value": value, "target": target}
}

func TestLaunchMetrics(t *testing.T) {
	out := LaunchMetrics(map[string]any{
		"aarrr": map[string]any{
			"acquisition": []any{metric(150, 150), metric(200, 150)},
			"activation":  []any{metric(80, 90)},
			"retention":   []any{metric(75, 75)},
			"revenue":     []any{metric(10000, 12000)},
			"referral":    []any{metric(15, 10)},
		},
		"funnels": []any{
			map[string]any{"name": "F1", "steps": []any{"A", "B"}},
			map[string]any{"name": "F2", "steps": []any{"C", "D"}},
			map[string]any{"name": "F3", "steps": []any{"E", "F"}},
		},
	})
	assert.Equal(t, 6, out["total_metrics"])
	assert.Equal(t, true, out["categories_complete"])
	assert.Equal(t, 3, out["funnel_count"])
	assert.Equal(t, 4, out["metrics_on_target"])
	assert.Equal(t, 2, out["metrics_below_target"])

	partial := LaunchMetrics(map[string]any{"aarrr": map[string]any{
		"acquisition": []any{metric(100, 150)},
		"activation":  []any{metric(80, 90)},
		"retention":   []any{},
	}})
	assert.Equal(t, false, partial["categories_complete"])
	assert.Equal(t, 0, partial["funnel_count"])
	assert.Equal(t, 2, partial["metrics_below_target"])

	empty := LaunchMetrics(map[string]any{"aarrr": map[string]any{}})
	assert.Equal(t, 0, empty["total_metrics"])
	assert.Equal(t, false, empty["categories_complete"])
}

func TestCandidateScores(t *testing.T) {
	candidate := func(name string, memorability, relevance, availability int) map[string]any {
		return map[string]any{
			"name":      name,
			"rationale": "because",
			"scores":    map[string]any{"Memorability": memorability, "Relevance": relevance, "Availability": availability},
		}
	}
	raw := map[string]any{
		"scoringCriteria": []any{
			map[string]any{"name": "Memorability", "weight": 30},
			map[string]any{"name": "Relevance", "weight": 40},
			map[string]any{"name": "Availability", "weight": 30},
		},
		"candidates": []any{
			candidate("Alpha", 80, 90, 70),
			candidate("Beta", 70, 80, 85),
			candidate("Gamma", 90, 70, 85),
			candidate("Delta", 85, 85, 85),
			candidate("Epsilon", 75, 80, 85),
		},
	}
	before := contracts.Clone(raw)
	out := CandidateScores(raw)
	assert.Equal(t, before, raw, "input is not modified")

	scored := out["candidates"].([]any)
	require.Len(t, scored, 5)
	want := map[string]float64{"Alpha": 81, "Beta": 78.5, "Gamma": 80.5, "Delta": 85, "Epsilon": 80}
	for _, item := range scored {
		c := item.(map[string]any)
		assert.Equal(t, want[c["name"].(string)], c["weighted_score"], c["name"])
		assert.Equal(t, "because", c["rationale"])
	}

	ranked := out["ranked_candidates"].([]any)
	require.Len(t, ranked, 5)
	assert.Equal(t, "Delta", ranked[0].(map[string]any)["name"])
	assert.Equal(t, "Alpha", ranked[1].(map[string]any)["name"])
	assert.Equal(t, "Beta", ranked[4].(map[string]any)["name"])

	few := CandidateScores(map[string]any{
		"scoringCriteria": raw["scoringCriteria"],
		"candidates":      []any{candidate("Solo", 100, 100, 100), map[string]any{"name": "Unscored"}},
	})
	assert.Len(t, few["ranked_candidates"], 1)
	_, scoredUnscored := few["candidates"].([]any)[1].(map[string]any)["weighted_score"]
	assert.False(t, scoredUnscored)
	assert.Nil(t, CandidateScores(map[string]any{"candidates": []any{candidate("x", 1, 1, 1)}}))
}

func TestArchitectureLayers(t *testing.T) {
	layer := func(components ...any) map[string]any {
		return map[string]any{"technology": "t", "components": components}
	}
	out := ArchitectureLayers(map[string]any{"layers": map[string]any{
		"frontend": layer("UI", "Router", "State"),
		"backend":  layer("API", "Auth"),
		"data":     layer("DB"),
		"infra":    layer("EC2", "S3"),
	}})
	assert.Equal(t, 4, out["layer_count"])
	assert.Equal(t, 8, out["total_components"])
	assert.Equal(t, true, out["all_layers_defined"])

	partial := ArchitectureLayers(map[string]any{"layers": map[string]any{"frontend": layer("UI")}})
	assert.Equal(t, 1, partial["layer_count"])
	assert.Equal(t, false, partial["all_layers_defined"])

	empty := ArchitectureLayers(map[string]any{"layers": map[string]any{}})
	assert.Equal(t, 0, empty["layer_count"])
	assert.Equal(t, 0, empty["total_components"])
}

func dated(name, date string, deliverables ...any) map[string]any {
	return map[string]any{"name": name, "date": date, "deliverables": deliverables}
}

func TestRoadmap(t *testing.T) {
	out := Roadmap(map[string]any{
		"milestones": []any{
			dated("M1", "2026-01-01", "D1"),
			dated("M2", "2026-04-01", "D2"),
			dated("M3", "2026-07-01", "D3"),
		},
		"phases": []any{map[string]any{"name": "Phase 1", "start_date": "2026-01-01", "end_date": "2026-07-01"}},
	})
	assert.Equal(t, 6, out["timeline_months"])
	assert.Equal(t, 3, out["milestone_count"])
	assert.Equal(t, "pass", out["decision"])
	assert.Equal(t, false, out["blockProgression"])
	assert.Equal(t, []any{}, out["reasons"])

	single := Roadmap(map[string]any{"milestones": []any{dated("M1", "2026-01-01", "D1")}})
	assert.Equal(t, 0, single["timeline_months"])
	assert.Equal(t, "kill", single["decision"])

	empty := Roadmap(map[string]any{"milestones": []any{}})
	assert.Equal(t, 0, empty["milestone_count"])
	assert.Equal(t, "kill", empty["decision"])
}

func TestRoadmapKillGate(t *testing.T) {
	three := []map[string]any{dated("M1", "", "D1"), dated("M2", "", "D2"), dated("M3", "", "D3")}
	tests := []struct {
		name       string
		milestones []map[string]any
		months     int
		types      []string
	}{
		{name: "valid", milestones: three, months: 6},
		{name: "too few milestones", milestones: three[:2], months: 6, types: []string{"insufficient_milestones"}},
		{
			name:       "missing deliverables",
			milestones: []map[string]any{dated("M1", "", "D1"), dated("M2", ""), dated("M3", "", "D3")},
			months:     6,
			types:      []string{"milestone_missing_deliverables"},
		},
		{name: "short timeline", milestones: three, months: 2, types: []string{"timeline_too_short"}},
		{
			name:       "every reason in order",
			milestones: []map[string]any{dated("M1", ""), dated("M2", "", "D2")},
			months:     1,
			types:      []string{"insufficient_milestones", "milestone_missing_deliverables", "timeline_too_short"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := roadmapKillGate(test.milestones, test.months)
			reasons := out["reasons"].([]any)
			var types []string
			for _, reason := range reasons {
				types = append(types, reason.(map[string]any)["type"].(string))
			}
			assert.Equal(t, test.types, types)
			assert.Equal(t, len(test.types) > 0, out["blockProgression"])
		})
	}

	short := roadmapKillGate(three[:2], 6)["reasons"].([]any)[0].(map[string]any)
	assert.Equal(t, minMilestones, short["threshold"])
	assert.Equal(t, 2, short["actual"])

	unnamed := roadmapKillGate([]map[string]any{{"deliverables": []any{}}, three[1], three[2]}, 6)
	reason := unnamed["reasons"].([]any)[0].(map[string]any)
	assert.Equal(t, 0, reason["milestone_index"])
	assert.Contains(t, reason["message"], "index 0")
}

func TestInitiativeCounts(t *testing.T) {
	items := func(n int) []any {
		out := make([]any, n)
		for i := range out {
			out[i] = map[string]any{"title": "x", "status": "completed"}
		}
		return out
	}
	out := InitiativeCounts(map[string]any{"initiatives": map[string]any{
		"product": items(2), "market": items(1), "technical": items(1), "financial": items(2), "team": items(1),
	}})
	assert.Equal(t, 7, out["total_initiatives"])
	assert.Equal(t, true, out["all_categories_reviewed"])

	partial := InitiativeCounts(map[string]any{"initiatives": map[string]any{
		"product": items(1), "market": items(1), "technical": items(0),
	}})
	assert.Equal(t, false, partial["all_categories_reviewed"])
	assert.Equal(t, 0, InitiativeCounts(map[string]any{"initiatives": map[string]any{}})["total_initiatives"])
}

func TestEmptyListsYieldZeroRates(t *testing.T) {
	assert.Equal(t, 0, Readiness(map[string]any{})["readinessScore"])
	assert.Equal(t, 0.0, QualityPassRate(map[string]any{})["overallPassRate"])
}

func TestDerivationsSatisfyTheirContracts(t *testing.T) {
	enriched := contracts.Enrich(6, map[string]any{"risks": []any{
		map[string]any{"title": "Supply", "severity": 5, "probability": 5},
	}}, Default().For(6, nil))
	result := contracts.ValidatePostStage(6, enriched, contracts.WithLogger(contracts.NopLogger))
	assert.True(t, result.Valid, result.Errors)
	score, _ := enriched.Get("normalized_risk_score")
	assert.Equal(t, 100.0, score)
}

func TestRegistry(t *testing.T) {
	reg := Default()
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25}, reg.Stages())
	assert.Nil(t, reg.For(1, nil))
	assert.NotNil(t, reg.For(16, nil))

	assert.Error(t, reg.Register(2, ReviewScore))
	assert.Error(t, reg.Register(0, ReviewScore))
	assert.Error(t, reg.Register(8, nil))
	assert.Error(t, reg.RegisterFunc(8, nil))
	assert.Panics(t, func() { reg.MustRegister(2, ReviewScore) })
	assert.Panics(t, func() { reg.MustRegisterFunc(9, ExitReality) })

	var none *Registry
	assert.Nil(t, none.For(2, nil))
}

func TestRegistryBindsUpstream(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegisterFunc(2, func(_ map[string]any, upstream contracts.UpstreamSet) map[string]any {
		idea, _ := upstream.Lookup(1)
		return map[string]any{"seen": idea["archetype"]}
	})
	bound := reg.For(2, contracts.UpstreamSet{1: {"archetype": "marketplace"}})
	assert.Equal(t, map[string]any{"seen": "marketplace"}, bound(map[string]any{}))
	assert.Equal(t, map[string]any{"seen": nil}, reg.For(2, nil)(map[string]any{}))
}
