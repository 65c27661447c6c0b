// Package analytics implements the AnalyticsPlanner (C8): it classifies a
// natural-language analytics request into one of five recipes and
// synthesizes the sandboxed source code and chart specification for it.
// Grounded on original_source/src/agents/analytics.py's recipe dispatch
// and on the teacher's convention of keeping numeric analysis in plain
// stdlib math (see pkg/schema's cosine similarity for the same posture).
package analytics

import (
	"fmt"
	"strings"
)

// Intent is the classified analytics recipe.
type Intent string

const (
	IntentNone        Intent = "none"
	IntentForecast    Intent = "forecast"
	IntentCorrelation Intent = "correlation"
	IntentAnomaly     Intent = "anomaly"
	IntentSummary     Intent = "summary"
	IntentSimulation  Intent = "simulation"
)

// intentKeywords is deliberately ordered: forecast, correlation, anomaly,
// summary, simulation. DetectIntent walks this order and returns the
// first match, so a query naming more than one recipe (e.g. "forecast the
// correlation between...") resolves to the earlier-listed intent.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentForecast, []string{"forecast", "predict", "projection", "next month", "next quarter", "trend line"}},
	{IntentCorrelation, []string{"correlation", "correlate", "relationship between", "related to", "linked to"}},
	{IntentAnomaly, []string{"anomaly", "anomalies", "unusual", "outlier", "spike", "drop off"}},
	{IntentSummary, []string{"summarize", "summary", "overview", "describe", "breakdown"}},
	{IntentSimulation, []string{"simulate", "simulation", "what if", "scenario", "monte carlo"}},
}

// DetectIntent classifies a natural-language analytics request. A query
// matching none of the recipe keyword sets returns IntentNone, telling the
// caller to skip analytics entirely rather than guessing a recipe.
func DetectIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return IntentNone
}

// ChartSpec is a provider-neutral chart description: "data" and "layout"
// mirror the shape shared by Plotly-family renderers without committing to
// one, per the spec's requirement that chart output not be tied to a
// specific frontend charting library.
type ChartSpec struct {
	Type   string         `json:"type"`
	Data   map[string]any `json:"data"`
	Layout map[string]any `json:"layout"`
}

// allowedChartTypes enumerates the chart types a recipe may emit.
var allowedChartTypes = map[string]bool{
	"line": true, "scatter": true, "bar": true, "heatmap": true, "histogram": true,
}

// Plan is the AnalyticsPlanner's output: sandbox-ready source plus the
// chart the result should render as.
type Plan struct {
	Intent    Intent
	Code      string
	ChartSpec ChartSpec
}

// Planner builds a Plan for a natural-language request against a set of
// available table names (as resolved by the focused schema context).
type Planner struct{}

// NewPlanner constructs a Planner. It carries no state: every recipe is a
// pure function of the query and the table list.
func NewPlanner() *Planner { return &Planner{} }

// ErrNoAnalyticsIntent is returned by Plan when query names none of the
// recipe keyword sets, telling the caller to skip analytics for this
// request rather than defaulting to a guessed recipe.
var ErrNoAnalyticsIntent = fmt.Errorf("query names no analytics recipe")

// Plan classifies the query and synthesizes the sandbox code and chart
// spec for the matched recipe. Returns ErrNoAnalyticsIntent if the query
// matches no recipe's keyword set.
func (p *Planner) Plan(query string, tables []string) (Plan, error) {
	if len(tables) == 0 {
		return Plan{}, fmt.Errorf("analytics plan requires at least one input table")
	}

	switch DetectIntent(query) {
	case IntentForecast:
		return forecastPlan(query, tables), nil
	case IntentCorrelation:
		return correlationPlan(query, tables), nil
	case IntentAnomaly:
		return anomalyPlan(tables), nil
	case IntentSimulation:
		return simulationPlan(query, tables), nil
	case IntentSummary:
		return summaryPlan(tables), nil
	default:
		return Plan{}, ErrNoAnalyticsIntent
	}
}
