package derive

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/stagegate/internal/contracts"
)

// ReviewScore averages critique scores into compositeScore when the review
// did not emit one.
func ReviewScore(raw map[string]any) map[string]any {
	if has(raw, "compositeScore") {
		return nil
	}
	var sum float64
	var count int
	for _, critique := range entries(raw, "critiques") {
		if score, ok := number(critique, "score"); ok {
			sum += score
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return map[string]any{"compositeScore": int(math.Round(sum / float64(count)))}
}

// validationMetrics are the six scored dimensions of stage 3.
var validationMetrics = []string{
	"marketFit",
	"customerNeed",
	"momentum",
	"revenuePotential",
	"competitiveBarrier",
	"executionFeasibility",
}

// ValidationScore averages the validation metrics into overallScore and maps
// the score to a pass, revise or kill decision.
func ValidationScore(raw map[string]any) map[string]any {
	var sum float64
	var count int
	for _, metric := range validationMetrics {
		if score, ok := number(raw, metric); ok {
			sum += score
			count++
		}
	}
	out := map[string]any{}
	score, ok := number(raw, "overallScore")
	if count > 0 {
		score = math.Round(sum / float64(count))
		ok = true
		out["overallScore"] = int(score)
	}
	if !ok {
		return nil
	}
	switch {
	case score >= 70:
		out["decision"] = "pass"
	case score >= 50:
		out["decision"] = "revise"
	default:
		out["decision"] = "kill"
	}
	return out
}

// CompetitiveHandoff summarizes the competitor list into the handoff object
// stage 5 consumes.
func CompetitiveHandoff(raw map[string]any) map[string]any {
	competitors := entries(raw, "competitors")
	threats := map[string]any{"H": 0, "M": 0, "L": 0}
	seen := map[string]struct{}{}
	for _, competitor := range competitors {
		switch level := text(competitor, "threat"); level {
		case "h", "high":
			threats["H"] = threats["H"].(int) + 1
		case "m", "medium":
			threats["M"] = threats["M"].(int) + 1
		case "l", "low":
			threats["L"] = threats["L"].(int) + 1
		}
		if model := text(competitor, "pricingModel"); model != "" {
			seen[model] = struct{}{}
		}
	}
	models := make([]string, 0, len(seen))
	for model := range seen {
		models = append(models, model)
	}
	sort.Strings(models)
	pricing := make([]any, len(models))
	for i, model := range models {
		pricing[i] = model
	}
	return map[string]any{
		"stage5Handoff": map[string]any{
			"competitorCount": len(competitors),
			"pricingModels":   pricing,
			"threatSummary":   threats,
		},
	}
}

// Profitability computes yearly profit, three-year net profit, ROI and the
// break-even year from the yearly revenue, cogs and opex figures.
func Profitability(raw map[string]any) map[string]any {
	investment, _ := number(raw, "initialInvestment")
	out := map[string]any{}
	var net, cumulative float64
	breakEven := 0
	for year := 1; year <= 3; year++ {
		key := fmt.Sprintf("year%d", year)
		figures, ok := object(raw, key)
		if !ok {
			return nil
		}
		revenue, _ := number(figures, "revenue")
		cogs, _ := number(figures, "cogs")
		opex, _ := number(figures, "opex")
		profit := revenue - cogs - opex
		out[key] = extend(figures, "netProfit", roundTo(profit, 2))
		net += profit
		cumulative += profit
		if breakEven == 0 && cumulative >= investment {
			breakEven = year
		}
	}
	out["netProfit3y"] = roundTo(net, 2)
	if investment > 0 {
		out["roi3y"] = roundTo((net-investment)/investment, 4)
	} else {
		out["roi3y"] = 0.0
	}
	if breakEven > 0 {
		out["breakEvenYear"] = breakEven
	}
	return out
}

// RiskScores scores each risk as severity times probability and rolls the
// scores up. Severity and probability are on a 1-5 scale, so a score tops out
// at 25.
func RiskScores(raw map[string]any) map[string]any {
	risks := entries(raw, "risks")
	if len(risks) == 0 {
		return nil
	}
	scored := make([]any, 0, len(risks))
	var total float64
	for _, risk := range risks {
		severity, _ := number(risk, "severity")
		probability, _ := number(risk, "probability")
		score := severity * probability
		scored = append(scored, extend(risk, "score", score))
		total += score
	}
	aggregate := total / float64(len(risks))
	return map[string]any{
		"risks":                 scored,
		"aggregate_risk_score":  roundTo(aggregate, 2),
		"normalized_risk_score": roundTo(percentOf(aggregate, 25), 2),
	}
}

// RevenueMetrics fills in ARPA from tier prices when absent and computes LTV,
// LTV:CAC and CAC payback from margin and churn.
func RevenueMetrics(raw map[string]any) map[string]any {
	out := map[string]any{}
	arpa, ok := number(raw, "arpa")
	if !ok {
		var sum float64
		var count int
		for _, tier := range entries(raw, "tiers") {
			if price, ok := number(tier, "price"); ok {
				sum += price
				count++
			}
		}
		if count == 0 {
			return nil
		}
		arpa = roundTo(sum/float64(count), 2)
		out["arpa"] = arpa
	}
	margin, hasMargin := number(raw, "gross_margin_pct")
	churn, hasChurn := number(raw, "churn_rate_monthly")
	cac, hasCAC := number(raw, "cac")
	contribution := arpa * margin / 100
	if hasMargin && hasChurn && churn > 0 {
		ltv := contribution / (churn / 100)
		out["ltv"] = roundTo(ltv, 2)
		if hasCAC && cac > 0 {
			out["ltv_cac_ratio"] = roundTo(ltv/cac, 2)
		}
	}
	if hasMargin && hasCAC && contribution > 0 {
		out["payback_months"] = roundTo(cac/contribution, 2)
	}
	return out
}

// CandidateScores weights each naming candidate's per-criterion scores by the
// criterion weights (percentages) and ranks the scored candidates, best first.
// Candidates without a scores object are kept but left unscored.
func CandidateScores(raw map[string]any) map[string]any {
	criteria := entries(raw, "scoringCriteria")
	candidates := entries(raw, "candidates")
	if len(criteria) == 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]any, 0, len(candidates))
	var ranked []map[string]any
	for _, candidate := range candidates {
		scores, ok := object(candidate, "scores")
		if !ok {
			scored = append(scored, candidate)
			continue
		}
		var total float64
		for _, criterion := range criteria {
			name, _ := criterion["name"].(string)
			weight, _ := number(criterion, "weight")
			score, _ := number(scores, name)
			total += weight / 100 * score
		}
		updated := extend(candidate, "weighted_score", roundTo(total, 2))
		scored = append(scored, updated)
		ranked = append(ranked, updated)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := number(ranked[i], "weighted_score")
		b, _ := number(ranked[j], "weighted_score")
		return a > b
	})
	order := make([]any, len(ranked))
	for i, candidate := range ranked {
		order[i] = candidate
	}
	return map[string]any{
		"candidates":        scored,
		"ranked_candidates": order,
	}
}

// ChannelBudget totals the monthly channel budgets and averages the non-zero
// expected CAC values.
func ChannelBudget(raw map[string]any) map[string]any {
	channels := entries(raw, "channels")
	var total, cacSum float64
	active, cacCount := 0, 0
	for _, channel := range channels {
		budget, _ := number(channel, "monthly_budget")
		total += budget
		if budget > 0 {
			active++
		}
		if cac, ok := number(channel, "expected_cac"); ok && cac > 0 {
			cacSum += cac
			cacCount++
		}
	}
	out := map[string]any{
		"total_monthly_budget": total,
		"active_channels":      active,
	}
	if cacCount > 0 {
		out["avg_cac"] = roundTo(cacSum/float64(cacCount), 2)
	}
	return out
}

// RoadmapPriorities counts milestones per priority bucket.
func RoadmapPriorities(raw map[string]any) map[string]any {
	counts := map[string]any{"now": 0, "next": 0, "later": 0}
	milestones := entries(raw, "milestones")
	for _, milestone := range milestones {
		bucket := text(milestone, "priority")
		if current, ok := counts[bucket].(int); ok {
			counts[bucket] = current + 1
		}
	}
	return map[string]any{
		"priorityCounts":  counts,
		"milestone_count": len(milestones),
	}
}

const (
	minMilestones     = 3
	minTimelineMonths = 3
)

// Roadmap counts milestones per priority bucket, measures the roadmap
// timeline, and runs the roadmap kill gate over the result.
func Roadmap(raw map[string]any) map[string]any {
	out := RoadmapPriorities(raw)
	months := timelineMonths(raw)
	out["timeline_months"] = months
	return merge(out, roadmapKillGate(entries(raw, "milestones"), months))
}

// timelineMonths is the number of whole months between the earliest and latest
// dated milestone or phase boundary. Fewer than two dates give zero.
func timelineMonths(raw map[string]any) int {
	var dates []time.Time
	collect := func(doc map[string]any, key string) {
		if t, ok := parseDate(doc[key]); ok {
			dates = append(dates, t)
		}
	}
	for _, milestone := range entries(raw, "milestones") {
		collect(milestone, "date")
	}
	for _, phase := range entries(raw, "phases") {
		collect(phase, "start_date")
		collect(phase, "end_date")
	}
	if len(dates) < 2 {
		return 0
	}
	first, last := dates[0], dates[0]
	for _, t := range dates[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	months := (last.Year()-first.Year())*12 + int(last.Month()) - int(first.Month())
	if last.Day() < first.Day() {
		months--
	}
	return max(months, 0)
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01"}

func parseDate(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func roadmapKillGate(milestones []map[string]any, months int) map[string]any {
	reasons := []any{}
	if len(milestones) < minMilestones {
		reasons = append(reasons, map[string]any{
			"type":      "insufficient_milestones",
			"message":   fmt.Sprintf("Roadmap has %d milestone(s), minimum %d required", len(milestones), minMilestones),
			"threshold": minMilestones,
			"actual":    len(milestones),
		})
	}
	for i, milestone := range milestones {
		if count(milestone, "deliverables") > 0 {
			continue
		}
		label := fmt.Sprintf("at index %d", i)
		if name, _ := milestone["name"].(string); strings.TrimSpace(name) != "" {
			label = fmt.Sprintf("'%s' (index %d)", name, i)
		}
		reasons = append(reasons, map[string]any{
			"type":            "milestone_missing_deliverables",
			"message":         fmt.Sprintf("Milestone %s has no deliverables", label),
			"milestone_index": i,
		})
	}
	if months < minTimelineMonths {
		reasons = append(reasons, map[string]any{
			"type":      "timeline_too_short",
			"message":   fmt.Sprintf("Roadmap spans %d month(s), minimum %d required", months, minTimelineMonths),
			"threshold": minTimelineMonths,
			"actual":    months,
		})
	}
	return killGate(reasons)
}

// requiredLayers are the architecture layers every venture must define.
var requiredLayers = []string{"frontend", "backend", "data", "infra"}

// ArchitectureLayers counts the defined layers and their components, and
// checks that every required layer is present.
func ArchitectureLayers(raw map[string]any) map[string]any {
	layers, _ := object(raw, "layers")
	defined, components := 0, 0
	for _, layer := range layers {
		if obj, ok := contracts.AsObject(layer); ok {
			defined++
			components += count(obj, "components")
		}
	}
	all := true
	for _, name := range requiredLayers {
		if _, ok := object(layers, name); !ok {
			all = false
		}
	}
	return map[string]any{
		"layer_count":        defined,
		"total_components":   components,
		"all_layers_defined": all,
	}
}

// RiskRegister counts risks and breaks them down by severity label.
func RiskRegister(raw map[string]any) map[string]any {
	breakdown := map[string]any{"critical": 0, "high": 0, "medium": 0, "low": 0}
	risks := entries(raw, "risks")
	for _, risk := range risks {
		level := text(risk, "severity")
		if current, ok := breakdown[level].(int); ok {
			breakdown[level] = current + 1
		}
	}
	return map[string]any{
		"totalRisks":        len(risks),
		"severityBreakdown": breakdown,
	}
}

// Runway derives runway from capital and burn, totals the projected revenue
// and costs, and finds the first month at which cumulative profit is no longer
// negative. A zero burn with capital on hand has unbounded runway, which is
// left unset, as is a break-even month the projections never reach.
func Runway(raw map[string]any) map[string]any {
	capital, _ := number(raw, "initial_capital")
	burn, _ := number(raw, "monthly_burn_rate")
	out := map[string]any{}
	switch {
	case burn > 0:
		out["runway_months"] = roundTo(capital/burn, 2)
	case capital == 0:
		out["runway_months"] = 0.0
	}
	var revenueTotal, costTotal float64
	breakEven := 0
	for i, projection := range entries(raw, "revenue_projections") {
		revenue, _ := number(projection, "revenue")
		costs, _ := number(projection, "costs")
		revenueTotal += revenue
		costTotal += costs
		if breakEven == 0 && revenueTotal-costTotal >= 0 {
			breakEven = i + 1
			if month, ok := number(projection, "month"); ok && month >= 1 {
				breakEven = int(month)
			}
		}
	}
	out["total_projected_revenue"] = revenueTotal
	out["total_projected_costs"] = costTotal
	if breakEven > 0 {
		out["break_even_month"] = breakEven
	}
	return out
}

// Readiness scores build readiness as the share of completed readiness items.
func Readiness(raw map[string]any) map[string]any {
	items := entries(raw, "readinessItems")
	complete := 0
	for _, item := range items {
		if text(item, "status") == "complete" {
			complete++
		}
	}
	return map[string]any{
		"readinessScore": int(math.Round(percentOf(float64(complete), float64(len(items))))),
	}
}

// SprintTotals sums estimated lines of code and story points across sprint
// items.
func SprintTotals(raw map[string]any) map[string]any {
	var loc, points float64
	for _, item := range entries(raw, "sprintItems") {
		if n, ok := number(item, "estimatedLoc"); ok {
			loc += n
		}
		if n, ok := number(item, "storyPoints"); ok {
			points += n
		}
	}
	return map[string]any{
		"totalEstimatedLoc": int(loc),
		"totalStoryPoints":  points,
	}
}

// BuildCompletion computes task completion for the sprint.
func BuildCompletion(raw map[string]any) map[string]any {
	tasks := entries(raw, "tasks")
	done, blocked := 0, 0
	for _, task := range tasks {
		switch text(task, "status") {
		case "done":
			done++
		case "blocked":
			blocked++
		}
	}
	return map[string]any{
		"completionPct": roundTo(percentOf(float64(done), float64(len(tasks))), 1),
		"sprintCompletion": map[string]any{
			"total":   len(tasks),
			"done":    done,
			"blocked": blocked,
		},
	}
}

// ReleaseItems counts release items and how many of them were approved.
func ReleaseItems(raw map[string]any) map[string]any {
	items := entries(raw, "releaseItems")
	approved := 0
	for _, item := range items {
		if text(item, "status") == "approved" {
			approved++
		}
	}
	return map[string]any{
		"total_items":    len(items),
		"approved_items": approved,
		"all_approved":   len(items) > 0 && approved == len(items),
	}
}

// QualityPassRate aggregates passing tests over total tests across suites.
func QualityPassRate(raw map[string]any) map[string]any {
	var passing, total float64
	for _, suite := range entries(raw, "testSuites") {
		p, _ := number(suite, "passing_tests")
		n, _ := number(suite, "total_tests")
		passing += p
		total += n
	}
	return map[string]any{"overallPassRate": roundTo(percentOf(passing, total), 2)}
}

// ReviewPassRate computes the share of integrations that passed review.
func ReviewPassRate(raw map[string]any) map[string]any {
	integrations := entries(raw, "integrations")
	passed := 0
	for _, integration := range integrations {
		if text(integration, "status") == "pass" {
			passed++
		}
	}
	return map[string]any{"passRate": roundTo(percentOf(float64(passed), float64(len(integrations))), 2)}
}

// aarrrCategories are the pirate-metric buckets of stage 24.
var aarrrCategories = []string{"acquisition", "activation", "retention", "revenue", "referral"}

// LaunchMetrics counts the AARRR metrics, checks every category is populated,
// counts funnels, and splits metrics by whether they reached their target.
func LaunchMetrics(raw map[string]any) map[string]any {
	aarrr, _ := object(raw, "aarrr")
	total, onTarget, below := 0, 0, 0
	complete := true
	for _, category := range aarrrCategories {
		metrics := entries(aarrr, category)
		if len(metrics) == 0 {
			complete = false
		}
		total += len(metrics)
		for _, metric := range metrics {
			value, ok := number(metric, "value")
			target, hasTarget := number(metric, "target")
			if !ok || !hasTarget {
				continue
			}
			if value >= target {
				onTarget++
			} else {
				below++
			}
		}
	}
	return map[string]any{
		"total_metrics":        total,
		"categories_complete":  complete,
		"funnel_count":         count(raw, "funnels"),
		"metrics_on_target":    onTarget,
		"metrics_below_target": below,
	}
}

// reviewCategories are the initiative buckets of the stage 25 venture review.
var reviewCategories = []string{"product", "market", "technical", "financial", "team"}

// InitiativeCounts totals the initiatives across the review categories and
// checks that each category was reviewed.
func InitiativeCounts(raw map[string]any) map[string]any {
	initiatives, _ := object(raw, "initiatives")
	total := 0
	reviewed := true
	for _, category := range reviewCategories {
		n := len(entries(initiatives, category))
		if n == 0 {
			reviewed = false
		}
		total += n
	}
	return map[string]any{
		"total_initiatives":       total,
		"all_categories_reviewed": reviewed,
	}
}
