package derive

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kingrea/stagegate/internal/contracts"
)

// Gate thresholds.
const (
	minExitRisks          = 10
	minNamingCandidates   = 5
	gtmTiers              = 3
	gtmChannels           = 8
	minFunnelStages       = 4
	minJourneySteps       = 5
	minRevenueProjections = 6
	minReadinessPct       = 80
	minBuildCompletionPct = 80
	minCoveragePct        = 60
	minPlanLength         = 10
	driftOverlapPct       = 30
)

// gate collects the blockers of a reality or promotion gate together with the
// action that clears each one.
type gate struct {
	phase    int
	blockers []any
	actions  []any
}

func (g *gate) block(blocker, action string) {
	g.blockers = append(g.blockers, blocker)
	g.actions = append(g.actions, action)
}

func (g *gate) result() map[string]any {
	rationale := fmt.Sprintf("All Phase %d prerequisites met", g.phase)
	if len(g.blockers) > 0 {
		rationale = fmt.Sprintf("Phase %d is incomplete: %d blocker(s) found", g.phase, len(g.blockers))
	}
	return map[string]any{
		"pass":                  len(g.blockers) == 0,
		"rationale":             rationale,
		"blockers":              append([]any{}, g.blockers...),
		"required_next_actions": append([]any{}, g.actions...),
	}
}

// unevaluated is the gate reported when no upstream data was supplied at all.
func unevaluated(kind string, from, to int) map[string]any {
	return map[string]any{
		"pass":                  false,
		"rationale":             "Prerequisites not provided; gate not evaluated",
		"blockers":              []any{fmt.Sprintf("Stage %02d-%02d data required", from, to)},
		"required_next_actions": []any{fmt.Sprintf("Complete stages %02d-%02d before evaluating %s", from, to, kind)},
	}
}

// killGate turns kill reasons into the decision fields of a kill gate.
func killGate(reasons []any) map[string]any {
	decision := "pass"
	if len(reasons) > 0 {
		decision = "kill"
	}
	return map[string]any{
		"decision":         decision,
		"blockProgression": len(reasons) > 0,
		"reasons":          reasons,
	}
}

// ExitReality evaluates the Phase 2 reality gate at the exit strategy stage
// from the published outputs of stages 6 to 8.
func ExitReality(_ map[string]any, upstream contracts.UpstreamSet) map[string]any {
	if upstream == nil {
		return map[string]any{"reality_gate": unevaluated("reality gate", 6, 8)}
	}
	g := gate{phase: 2}
	if n := count(output(upstream, 6), "risks"); n < minExitRisks {
		g.block(fmt.Sprintf("Insufficient risks: %d < %d required", n, minExitRisks),
			fmt.Sprintf("Add %d more risks to the risk matrix", minExitRisks-n))
	}
	revenue := output(upstream, 7)
	if count(revenue, "tiers") == 0 {
		g.block("No pricing tiers defined", "Define at least 1 pricing tier")
	}
	if !has(revenue, "ltv") {
		g.block("LTV not computed (likely zero churn rate)", "Set a non-zero monthly churn rate to compute LTV")
	}
	if !has(revenue, "payback_months") {
		g.block("Payback months not computed", "Ensure ARPA and gross margin produce positive monthly profit")
	}
	canvas := output(upstream, 8)
	for _, block := range contracts.CanvasBlocks() {
		if !canvasBlockPopulated(canvas, block) {
			g.block(fmt.Sprintf("BMC block '%s' is empty or missing", block),
				fmt.Sprintf("Populate the '%s' section of the Business Model Canvas", block))
		}
	}
	return map[string]any{"reality_gate": g.result()}
}

// canvasBlockPopulated reports whether a canvas block carries content. A block
// that lists its entries under items needs at least one.
func canvasBlockPopulated(canvas map[string]any, block string) bool {
	obj, ok := object(canvas, block)
	if !ok || len(obj) == 0 {
		return false
	}
	if _, listed := obj["items"]; listed {
		return count(obj, "items") > 0
	}
	return true
}

// SalesReality evaluates the Phase 3 reality gate at the sales logic stage. The
// naming and go-to-market checks read stages 10 and 11; the funnel checks read
// the stage's own output.
func SalesReality(raw map[string]any, upstream contracts.UpstreamSet) map[string]any {
	if upstream == nil {
		return map[string]any{"reality_gate": unevaluated("reality gate", 10, 11)}
	}
	g := gate{phase: 3}
	candidates := entries(output(upstream, 10), "candidates")
	if n := len(candidates); n < minNamingCandidates {
		g.block(fmt.Sprintf("Insufficient naming candidates: %d < %d required", n, minNamingCandidates),
			fmt.Sprintf("Add %d more naming candidates with scores", minNamingCandidates-n))
	}
	scored := 0
	for _, candidate := range candidates {
		if _, ok := number(candidate, "weighted_score"); ok {
			scored++
		}
	}
	if scored < len(candidates) {
		g.block(fmt.Sprintf("Only %d of %d candidates have scores computed", scored, len(candidates)),
			"Ensure all naming candidates have scoring criteria applied")
	}

	gtm := output(upstream, 11)
	if n := count(gtm, "tiers"); n != gtmTiers {
		g.block(fmt.Sprintf("GTM requires exactly %d tiers (got %d)", gtmTiers, n),
			fmt.Sprintf("Define exactly %d target market tiers", gtmTiers))
	}
	if n := count(gtm, "channels"); n != gtmChannels {
		g.block(fmt.Sprintf("GTM requires exactly %d channels (got %d)", gtmChannels, n),
			fmt.Sprintf("Define exactly %d acquisition channels with budget and CAC", gtmChannels))
	}

	funnel := entries(raw, "funnel_stages")
	if n := len(funnel); n < minFunnelStages {
		g.block(fmt.Sprintf("Insufficient funnel stages: %d < %d required", n, minFunnelStages),
			fmt.Sprintf("Add %d more funnel stages with metrics", minFunnelStages-n))
	}
	unmeasured := 0
	for _, stage := range funnel {
		metric, _ := stage["metric"].(string)
		if strings.TrimSpace(metric) == "" || !has(stage, "target_value") {
			unmeasured++
		}
	}
	if unmeasured > 0 {
		g.block(fmt.Sprintf("%d funnel stage(s) missing metric or target value", unmeasured),
			"Ensure all funnel stages have a named metric and target value")
	}
	if n := count(raw, "customer_journey"); n < minJourneySteps {
		g.block(fmt.Sprintf("Insufficient customer journey steps: %d < %d required", n, minJourneySteps),
			fmt.Sprintf("Add %d more customer journey steps mapped to funnel stages", minJourneySteps-n))
	}
	return map[string]any{"reality_gate": g.result()}
}

// Financials derives runway and projection totals and evaluates the Phase 4
// promotion gate over the blueprint stages.
func Financials(raw map[string]any, upstream contracts.UpstreamSet) map[string]any {
	out := Runway(raw)
	if upstream == nil {
		out["promotion_gate"] = unevaluated("promotion gate", 13, 15)
		return out
	}
	g := gate{phase: 4}
	roadmap := output(upstream, 13)
	if n := count(roadmap, "milestones"); n < minMilestones {
		g.block(fmt.Sprintf("Roadmap has %d milestone(s), minimum %d required", n, minMilestones),
			"Add milestones with deliverables to the product roadmap")
	}
	if text(roadmap, "decision") == "kill" {
		g.block("Stage 13 kill gate triggered", "Resolve kill gate reasons in the product roadmap")
	}
	layers, _ := object(output(upstream, 14), "layers")
	for _, name := range requiredLayers {
		if _, ok := object(layers, name); !ok {
			g.block(fmt.Sprintf("Architecture layer '%s' not defined", name),
				fmt.Sprintf("Define the %s layer in the technical architecture", name))
		}
	}
	if count(output(upstream, 15), "risks") == 0 {
		g.block("Risk register has no entries", "Add at least 1 risk to the risk register")
	}
	if capital, _ := number(raw, "initial_capital"); capital <= 0 {
		g.block("No initial capital allocated", "Set the initial capital for the venture")
	}
	if n := count(raw, "revenue_projections"); n < minRevenueProjections {
		g.block(fmt.Sprintf("Only %d revenue projection(s), minimum %d required", n, minRevenueProjections),
			fmt.Sprintf("Extend revenue projections to at least %d months", minRevenueProjections))
	}
	out["promotion_gate"] = g.result()
	return out
}

// Release counts approved release items and evaluates the Phase 5 promotion
// gate over the whole build loop.
func Release(raw map[string]any, upstream contracts.UpstreamSet) map[string]any {
	out := ReleaseItems(raw)
	if upstream == nil {
		out["promotion_gate"] = unevaluated("promotion gate", 17, 21)
		return out
	}
	g := gate{phase: 5}
	readiness := output(upstream, 17)
	if count(readiness, "readinessItems") == 0 {
		g.block("No pre-build readiness items defined", "Complete all pre-build checklist categories")
	}
	if score, _ := number(readiness, "readinessScore"); score < minReadinessPct {
		g.block(fmt.Sprintf("Pre-build readiness at %s%%, minimum %d%% required", formatNumber(score), minReadinessPct),
			"Complete pre-build checklist items to reach readiness threshold")
	}
	if n := count(readiness, "blockers"); n > 0 {
		g.block(fmt.Sprintf("%d pre-build blocker(s) unresolved", n), "Resolve all pre-build blockers")
	}
	if count(output(upstream, 18), "sprintItems") == 0 {
		g.block("No sprint items defined", "Define at least 1 sprint item")
	}
	build := output(upstream, 19)
	if pct, _ := number(build, "completionPct"); pct < minBuildCompletionPct {
		g.block(fmt.Sprintf("Build completion at %s%%, minimum %d%% required", formatNumber(pct), minBuildCompletionPct),
			"Complete more build tasks before release")
	}
	completion, _ := object(build, "sprintCompletion")
	if blocked, _ := number(completion, "blocked"); blocked > 0 {
		g.block(fmt.Sprintf("%d build task(s) are blocked", int(blocked)), "Resolve blocked build tasks")
	}
	quality := output(upstream, 20)
	if rate, _ := number(quality, "overallPassRate"); rate < 100 {
		g.block(fmt.Sprintf("Test pass rate at %s%%, must be 100%%", formatNumber(rate)), "Fix all failing tests before release")
	}
	if coverage, _ := number(quality, "coveragePct"); coverage < minCoveragePct {
		g.block(fmt.Sprintf("Test coverage at %s%%, minimum %d%% required", formatNumber(coverage), minCoveragePct),
			fmt.Sprintf("Increase test coverage to at least %d%%", minCoveragePct))
	}
	failing := 0
	for _, integration := range entries(output(upstream, 21), "integrations") {
		if text(integration, "status") != "pass" {
			failing++
		}
	}
	if failing > 0 {
		g.block(fmt.Sprintf("%d integration(s) failing", failing), "Fix all failing integration tests")
	}
	total, _ := out["total_items"].(int)
	approved, _ := out["approved_items"].(int)
	if pending := total - approved; pending > 0 {
		g.block(fmt.Sprintf("%d release item(s) not yet approved", pending), "Get approval for all release items")
	}
	out["promotion_gate"] = g.result()
	return out
}

// launchPlans are the operational plans a go decision must carry.
var launchPlans = []struct {
	field, reason, label string
}{
	{"incident_response_plan", "missing_incident_response", "Incident response plan"},
	{"monitoring_setup", "missing_monitoring", "Monitoring setup"},
	{"rollback_plan", "missing_rollback", "Rollback plan"},
}

// LaunchGate evaluates the launch kill gate. A go decision must carry every
// operational plan, and the release stage's promotion gate must have passed
// when it is available.
func LaunchGate(raw map[string]any, upstream contracts.UpstreamSet) map[string]any {
	reasons := []any{}
	switch decision := text(raw, "go_decision"); decision {
	case "":
		reasons = append(reasons, map[string]any{"type": "no_go_decision", "message": "Go/no-go decision not set"})
	case "no-go", "no_go":
		reasons = append(reasons, map[string]any{"type": "no_go_decision", "message": "Launch decision is no-go"})
	default:
		for _, plan := range launchPlans {
			body, _ := raw[plan.field].(string)
			if len(strings.TrimSpace(body)) < minPlanLength {
				reasons = append(reasons, map[string]any{
					"type":    plan.reason,
					"message": fmt.Sprintf("%s missing or shorter than %d characters", plan.label, minPlanLength),
				})
			}
		}
	}
	if promotion, ok := object(output(upstream, 22), "promotion_gate"); ok {
		if passed, _ := promotion["pass"].(bool); !passed {
			reasons = append(reasons, map[string]any{
				"type":    "stage22_not_complete",
				"message": fmt.Sprintf("Release promotion gate has not passed: %d blocker(s) outstanding", count(promotion, "blockers")),
			})
		}
	}
	return killGate(reasons)
}

// VentureReview counts initiatives and checks how far the venture's vision has
// drifted from the original idea.
func VentureReview(raw map[string]any, upstream contracts.UpstreamSet) map[string]any {
	out := InitiativeCounts(raw)
	current, _ := raw["current_vision"].(string)
	if strings.TrimSpace(current) == "" {
		current, _ = output(upstream, 13)["vision_statement"].(string)
	}
	check := map[string]any{"drift_detected": false, "current_vision": current}
	idea, ok := upstream.Lookup(1)
	original, _ := idea["description"].(string)
	switch {
	case !ok:
		check["original_vision"] = nil
		check["rationale"] = "Stage 1 data not provided; drift check skipped"
	case strings.TrimSpace(original) == "":
		check["original_vision"] = nil
		check["rationale"] = "No original vision recorded; nothing to compare"
	default:
		check["original_vision"] = original
		pct := visionOverlap(original, current)
		check["overlap_pct"] = pct
		if pct < driftOverlapPct {
			check["drift_detected"] = true
			check["rationale"] = fmt.Sprintf("Significant drift detected: %d%% overlap with the original vision", pct)
		} else {
			check["rationale"] = fmt.Sprintf("Vision consistent with the original: %d%% overlap", pct)
		}
	}
	out["drift_check"] = check
	out["drift_detected"] = check["drift_detected"]
	return out
}

// visionOverlap is the Jaccard overlap, as a whole percentage, of the
// significant words (longer than three letters) of two statements. Two
// statements without significant words overlap fully.
func visionOverlap(a, b string) int {
	left, right := significantWords(a), significantWords(b)
	union := len(left)
	shared := 0
	for word := range right {
		if _, ok := left[word]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 100
	}
	return int(math.Round(float64(shared) / float64(union) * 100))
}

func significantWords(s string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(word)) > 3 {
			words[word] = struct{}{}
		}
	}
	return words
}
