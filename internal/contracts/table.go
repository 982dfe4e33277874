package contracts

// Phase names group stages the way operators talk about the pipeline.
const (
	PhaseIdea      = "the-idea"
	PhaseTruth     = "the-truth"
	PhasePlan      = "the-plan"
	PhaseBrand     = "the-brand"
	PhaseBlueprint = "the-blueprint"
	PhaseBuild     = "build-loop"
	PhaseLaunch    = "launch-and-learn"
)

// canvasBlocks are the nine Business Model Canvas sections produced by stage 8.
var canvasBlocks = []string{
	"customerSegments",
	"valuePropositions",
	"channels",
	"customerRelationships",
	"revenueStreams",
	"keyResources",
	"keyActivities",
	"keyPartnerships",
	"costStructure",
}

func canvasSpec() Spec {
	spec := make(Spec, 0, len(canvasBlocks))
	for _, block := range canvasBlocks {
		spec = append(spec, Obj(block))
	}
	return spec
}

// CanvasBlocks returns the Business Model Canvas block names.
func CanvasBlocks() []string {
	return append([]string(nil), canvasBlocks...)
}

var percent = Between(0, 100)

func stageTable() []StageContract {
	return []StageContract{
		{
			Stage: 1,
			Name:  "Draft Idea",
			Phase: PhaseIdea,
			Produces: Spec{
				Str("description", 50),
				Str("problemStatement", 20),
				Str("valueProp", 20),
				Str("targetMarket", 10),
				Str("archetype", 0),
				Arr("keyAssumptions", 1).Opt(),
				Str("moatStrategy", 0).Opt(),
				Arr("successCriteria", 0).Opt(),
			},
		},
		{
			Stage: 2,
			Name:  "AI Review",
			Phase: PhaseIdea,
			Consumes: []Dependency{
				{Stage: 1, Fields: Spec{
					Str("description", 50),
					Str("problemStatement", 20),
					Str("valueProp", 20),
					Str("targetMarket", 10),
					Str("archetype", 0),
				}},
			},
			Produces: Spec{
				Int("compositeScore", percent),
				Arr("critiques", 0).Opt(),
				Obj("analysis").Opt(),
				Obj("metrics").Opt(),
				Obj("evidence").Opt(),
				Arr("suggestions", 0).Opt(),
			},
		},
		{
			Stage: 3,
			Name:  "Comprehensive Validation",
			Phase: PhaseIdea,
			Consumes: []Dependency{
				{Stage: 2, Fields: Spec{
					Obj("metrics"),
					Obj("evidence"),
				}},
				{Stage: 1, Fields: Spec{
					Str("archetype", 0),
					Str("problemStatement", 20),
				}},
			},
			Produces: Spec{
				Int("overallScore", percent),
				Str("decision", 0),
				Int("marketFit", percent).Opt(),
				Int("customerNeed", percent).Opt(),
				Int("momentum", percent).Opt(),
				Int("revenuePotential", percent).Opt(),
				Int("competitiveBarrier", percent).Opt(),
				Int("executionFeasibility", percent).Opt(),
				Arr("competitorEntities", 0).Opt(),
				Obj("confidenceScores").Opt(),
			},
		},
		{
			Stage: 4,
			Name:  "Competitive Intelligence",
			Phase: PhaseTruth,
			Consumes: []Dependency{
				{Stage: 3, Fields: Spec{
					Arr("competitorEntities", 0).Opt(),
					Str("decision", 0).Opt(),
				}},
			},
			Produces: Spec{
				Arr("competitors", 1),
				Obj("stage5Handoff"),
				Obj("blueOceanAnalysis").Opt(),
			},
		},
		{
			Stage: 5,
			Name:  "Profitability Forecasting",
			Phase: PhaseTruth,
			Consumes: []Dependency{
				{Stage: 4, Fields: Spec{
					Obj("stage5Handoff"),
				}},
			},
			Produces: Spec{
				Num("initialInvestment", AtLeast(0)),
				Obj("year1"),
				Obj("year2"),
				Obj("year3"),
				Obj("unitEconomics"),
				Num("roi3y", Bounds{}),
				Num("netProfit3y", Bounds{}).Opt(),
				Int("breakEvenYear", Between(1, 3)).Opt(),
				Obj("scenarioAnalysis").Opt(),
				Obj("assumptions").Opt(),
			},
		},
		{
			Stage: 6,
			Name:  "Risk Evaluation",
			Phase: PhasePlan,
			Consumes: []Dependency{
				{Stage: 5, Fields: Spec{
					Obj("unitEconomics"),
				}},
			},
			Produces: Spec{
				Arr("risks", 1),
				Num("aggregate_risk_score", AtLeast(0)),
				Num("normalized_risk_score", percent),
			},
		},
		{
			Stage: 7,
			Name:  "Revenue Architecture",
			Phase: PhasePlan,
			Consumes: []Dependency{
				{Stage: 5, Fields: Spec{
					Obj("unitEconomics"),
				}},
				{Stage: 6, Fields: Spec{
					Num("aggregate_risk_score", Bounds{}).Opt(),
				}},
			},
			Produces: Spec{
				Str("pricing_model", 0),
				Arr("tiers", 1),
				Str("currency", 3).Opt(),
				Num("arpa", AtLeast(0)).Opt(),
				Num("cac", AtLeast(0)).Opt(),
				Num("gross_margin_pct", percent).Opt(),
				Num("churn_rate_monthly", percent).Opt(),
				Num("ltv", AtLeast(0)).Opt(),
				Num("ltv_cac_ratio", AtLeast(0)).Opt(),
				Num("payback_months", AtLeast(0)).Opt(),
			},
		},
		{
			Stage: 8,
			Name:  "Business Model Canvas",
			Phase: PhasePlan,
			Consumes: []Dependency{
				{Stage: 7, Fields: Spec{
					Str("pricing_model", 0),
					Arr("tiers", 1),
				}},
			},
			Produces: canvasSpec(),
		},
		{
			Stage: 9,
			Name:  "Exit Strategy",
			Phase: PhasePlan,
			Consumes: []Dependency{
				{Stage: 6, Fields: Spec{
					Arr("risks", 1),
					Num("aggregate_risk_score", Bounds{}).Opt(),
				}},
				{Stage: 7, Fields: Spec{
					Arr("tiers", 1),
				}},
				{Stage: 8, Fields: canvasSpec()},
			},
			Produces: Spec{
				Str("exit_thesis", 20),
				Arr("exit_paths", 1),
				Arr("target_acquirers", 1),
				Obj("valuationEstimate"),
				Obj("reality_gate").Opt(),
			},
		},
		{
			Stage: 10,
			Name:  "Naming and Brand",
			Phase: PhaseBrand,
			Produces: Spec{
				Obj("brandGenome"),
				Arr("scoringCriteria", 1),
				Arr("candidates", 1),
				Obj("decision"),
				Arr("ranked_candidates", 0).Opt(),
			},
		},
		{
			Stage: 11,
			Name:  "Go-To-Market Strategy",
			Phase: PhaseBrand,
			Consumes: []Dependency{
				{Stage: 5, Fields: Spec{
					Obj("unitEconomics"),
				}},
				{Stage: 1, Fields: Spec{
					Str("targetMarket", 10),
				}},
			},
			Produces: Spec{
				Arr("tiers", 1),
				Arr("channels", 1),
				Arr("launch_timeline", 0).Opt(),
				Num("total_monthly_budget", AtLeast(0)),
				Int("active_channels", AtLeast(0)).Opt(),
			},
		},
		{
			Stage: 12,
			Name:  "Sales Logic",
			Phase: PhaseBrand,
			Consumes: []Dependency{
				{Stage: 11, Fields: Spec{
					Arr("channels", 1),
					Arr("tiers", 1),
				}},
				{Stage: 7, Fields: Spec{
					Str("pricing_model", 0),
				}},
			},
			Produces: Spec{
				Str("sales_model", 0),
				Arr("deal_stages", 1),
				Arr("funnel_stages", 1),
				Arr("customer_journey", 1),
				Obj("reality_gate").Opt(),
			},
		},
		{
			Stage: 13,
			Name:  "Product Roadmap",
			Phase: PhaseBlueprint,
			Consumes: []Dependency{
				{Stage: 1, Fields: Spec{
					Str("valueProp", 20),
				}},
				{Stage: 8, Fields: Spec{
					Obj("keyActivities"),
				}},
				{Stage: 9, Fields: Spec{
					Str("exit_thesis", 0).Opt(),
				}},
			},
			Produces: Spec{
				Str("vision_statement", 20),
				Arr("milestones", 1),
				Arr("phases", 1),
				Obj("priorityCounts"),
				Int("milestone_count", AtLeast(0)).Opt(),
				Int("timeline_months", AtLeast(0)).Opt(),
				Str("decision", 0).Opt(),
				Arr("reasons", 0).Opt(),
			},
		},
		{
			Stage: 14,
			Name:  "Technical Architecture",
			Phase: PhaseBlueprint,
			Consumes: []Dependency{
				{Stage: 13, Fields: Spec{
					Arr("milestones", 1),
					Arr("phases", 1),
				}},
			},
			Produces: Spec{
				Obj("layers"),
				Obj("security"),
				Arr("dataEntities", 1),
				Arr("integration_points", 0).Opt(),
				Int("layer_count", AtLeast(0)).Opt(),
				Int("total_components", AtLeast(0)).Opt(),
			},
		},
		{
			Stage: 15,
			Name:  "Risk Register",
			Phase: PhaseBlueprint,
			Consumes: []Dependency{
				{Stage: 14, Fields: Spec{
					Obj("layers"),
				}},
				{Stage: 6, Fields: Spec{
					Arr("risks", 0).Opt(),
				}},
			},
			Produces: Spec{
				Arr("risks", 1),
				Int("totalRisks", AtLeast(0)),
				Obj("severityBreakdown"),
			},
		},
		{
			Stage: 16,
			Name:  "Financial Projections",
			Phase: PhaseBlueprint,
			Consumes: []Dependency{
				{Stage: 13, Fields: Spec{
					Arr("phases", 1),
				}},
				{Stage: 15, Fields: Spec{
					Int("totalRisks", Bounds{}).Opt(),
				}},
			},
			Produces: Spec{
				Num("initial_capital", AtLeast(0)),
				Num("monthly_burn_rate", AtLeast(0)),
				Arr("revenue_projections", 1),
				Arr("funding_rounds", 0).Opt(),
				Num("runway_months", AtLeast(0)).Opt(),
				Int("break_even_month", AtLeast(1)).Opt(),
				Num("total_projected_revenue", Bounds{}).Opt(),
				Num("total_projected_costs", Bounds{}).Opt(),
				Obj("promotion_gate").Opt(),
			},
		},
		{
			Stage: 17,
			Name:  "Build Readiness",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 16, Fields: Spec{
					Num("initial_capital", AtLeast(0)),
					Num("runway_months", Bounds{}).Opt(),
				}},
				{Stage: 14, Fields: Spec{
					Obj("layers"),
				}},
			},
			Produces: Spec{
				Arr("readinessItems", 1),
				Arr("blockers", 0),
				Obj("buildReadiness"),
				Int("readinessScore", percent),
			},
		},
		{
			Stage: 18,
			Name:  "Sprint Planning",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 17, Fields: Spec{
					Obj("buildReadiness"),
				}},
				{Stage: 13, Fields: Spec{
					Arr("milestones", 1),
				}},
			},
			Produces: Spec{
				Str("sprintGoal", 10),
				Arr("sprintItems", 1),
				Int("totalEstimatedLoc", AtLeast(0)),
				Num("totalStoryPoints", AtLeast(0)).Opt(),
			},
		},
		{
			Stage: 19,
			Name:  "Build Execution",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 18, Fields: Spec{
					Arr("sprintItems", 1),
				}},
			},
			Produces: Spec{
				Arr("tasks", 1),
				Arr("issues", 0),
				Obj("sprintCompletion"),
				Num("completionPct", percent),
			},
		},
		{
			Stage: 20,
			Name:  "Quality Assurance",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 19, Fields: Spec{
					Arr("tasks", 1),
					Num("completionPct", percent).Opt(),
				}},
			},
			Produces: Spec{
				Arr("testSuites", 1),
				Arr("knownDefects", 0),
				Obj("qualityDecision"),
				Num("overallPassRate", percent),
				Num("coveragePct", percent),
			},
		},
		{
			Stage: 21,
			Name:  "Build Review",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 20, Fields: Spec{
					Obj("qualityDecision"),
					Num("overallPassRate", percent),
				}},
			},
			Produces: Spec{
				Arr("integrations", 1),
				Obj("reviewDecision"),
				Num("passRate", percent),
			},
		},
		{
			Stage: 22,
			Name:  "Release Readiness",
			Phase: PhaseBuild,
			Consumes: []Dependency{
				{Stage: 21, Fields: Spec{
					Obj("reviewDecision"),
				}},
				{Stage: 20, Fields: Spec{
					Obj("qualityDecision"),
				}},
			},
			Produces: Spec{
				Arr("releaseItems", 1),
				Str("releaseNotes", 10),
				Obj("releaseDecision"),
				Obj("sprintRetrospective"),
				Obj("sprintSummary"),
				Int("total_items", AtLeast(0)).Opt(),
				Int("approved_items", AtLeast(0)).Opt(),
				Obj("promotion_gate").Opt(),
			},
		},
		{
			Stage: 23,
			Name:  "Launch Execution",
			Phase: PhaseLaunch,
			Consumes: []Dependency{
				{Stage: 22, Fields: Spec{
					Obj("releaseDecision"),
					Obj("promotion_gate").Opt(),
				}},
				{Stage: 1, Fields: Spec{
					Str("targetMarket", 10).Opt(),
				}},
			},
			Produces: Spec{
				Str("launchType", 0),
				Arr("successCriteria", 1),
				Arr("rollbackTriggers", 1),
				Arr("launchTasks", 1),
				Str("go_decision", 0).Opt(),
				Str("incident_response_plan", 10).Opt(),
				Str("monitoring_setup", 10).Opt(),
				Str("rollback_plan", 10).Opt(),
				Str("decision", 0).Opt(),
				Arr("reasons", 0).Opt(),
			},
		},
		{
			Stage: 24,
			Name:  "Metrics and Learning",
			Phase: PhaseLaunch,
			Consumes: []Dependency{
				{Stage: 23, Fields: Spec{
					Str("launchType", 0),
					Arr("successCriteria", 1),
				}},
			},
			Produces: Spec{
				Obj("aarrr"),
				Arr("criteriaEvaluation", 0),
				Arr("learnings", 0),
				Obj("launchOutcome"),
				Arr("funnels", 0).Opt(),
				Int("total_metrics", AtLeast(0)).Opt(),
				Int("funnel_count", AtLeast(0)).Opt(),
				Int("metrics_on_target", AtLeast(0)).Opt(),
				Int("metrics_below_target", AtLeast(0)).Opt(),
			},
		},
		{
			Stage: 25,
			Name:  "Venture Review",
			Phase: PhaseLaunch,
			Consumes: []Dependency{
				{Stage: 24, Fields: Spec{
					Obj("launchOutcome"),
					Obj("aarrr"),
				}},
				{Stage: 23, Fields: Spec{
					Str("launchType", 0),
				}},
				{Stage: 1, Fields: Spec{
					Str("description", 50),
				}},
				{Stage: 5, Fields: Spec{
					Obj("unitEconomics"),
					Num("roi3y", Bounds{}).Opt(),
				}},
				{Stage: 16, Fields: Spec{
					Arr("revenue_projections", 1),
				}},
				{Stage: 13, Fields: Spec{
					Str("vision_statement", 20),
				}},
			},
			Produces: Spec{
				Obj("journeySummary"),
				Obj("financialComparison"),
				Obj("ventureHealth"),
				Obj("driftAnalysis"),
				Obj("ventureDecision"),
				Obj("initiatives"),
				Str("current_vision", 10).Opt(),
				Int("total_initiatives", AtLeast(0)).Opt(),
				Obj("drift_check").Opt(),
			},
		},
	}
}
