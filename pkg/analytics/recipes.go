package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// changePercentDefault is used when a simulation query names no explicit
// percentage change.
const changePercentDefault = 10.0

// simulationRunsDefault is the default Monte Carlo run count and
// simulationRunsCap the largest run count a simulation may use.
const (
	simulationRunsDefault = 1000
	simulationRunsCap     = 10000
)

// summaryPlan produces descriptive statistics over every numeric column of
// the first input table, per the summary contract's summary_stats/
// outliers/missing_data/key_insights keys.
func summaryPlan(tables []string) Plan {
	table := tables[0]
	code := fmt.Sprintf(`df = tables[%q]
numeric = df.select_dtypes(include="number")
summary_stats = {}
outliers = {}
missing_data = {}
for col in numeric.columns:
    series = numeric[col]
    summary_stats[col] = {
        "count": int(series.count()),
        "mean": float(series.mean()),
        "std": float(series.std() or 0.0),
        "min": float(series.min()),
        "p25": float(series.quantile(0.25)),
        "p50": float(series.quantile(0.5)),
        "p75": float(series.quantile(0.75)),
        "max": float(series.max()),
    }
    std = series.std() or 0.0
    if std:
        z = (series - series.mean()) / std
        outliers[col] = series.index[z.abs() > 3].tolist()
    else:
        outliers[col] = []
    missing_data[col] = float(df[col].isna().mean() * 100)
key_insights = (str(len(numeric.columns)) + " numeric column(s) summarized over " + str(len(df)) + " rows") if len(numeric.columns) else "no numeric columns found"
result = {
    "summary_stats": summary_stats,
    "outliers": outliers,
    "missing_data": missing_data,
    "key_insights": key_insights,
}
`, table)

	return Plan{
		Intent: IntentSummary,
		Code:   code,
		ChartSpec: ChartSpec{
			Type:   "bar",
			Data:   map[string]any{"source": "result.summary_stats"},
			Layout: map[string]any{"title": "Summary statistics"},
		},
	}
}

// forecastHorizonDays parses "next month"/"next quarter"/"next year" out
// of query, defaulting to 30 days when none of those phrases appear.
func forecastHorizonDays(query string) int {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "next year"):
		return 365
	case strings.Contains(lower, "next quarter"):
		return 90
	default:
		return 30
	}
}

// forecastPlan projects the first numeric column forward with a 7-period
// moving average, matching MovingAverageForecast below, and pairs each
// projected point with a date if the table carries a date/time column.
func forecastPlan(query string, tables []string) Plan {
	table := tables[0]
	horizonDays := forecastHorizonDays(query)
	code := fmt.Sprintf(`df = tables[%q]
numeric_cols = [c for c in df.select_dtypes(include="number").columns]
date_cols = [c for c in df.columns if "date" in c.lower() or "time" in c.lower()]
col = numeric_cols[0] if numeric_cols else None
horizon = %d
if col:
    series = df[col].tolist()
    window = min(7, len(series)) or 1
    avg = sum(series[-window:]) / window if series else 0.0
    forecast = [avg] * horizon
    if date_cols:
        parsed_dates = pd.to_datetime(df[date_cols[0]])
        step = parsed_dates.diff().median() if len(parsed_dates) > 1 else pd.Timedelta(days=1)
        start = parsed_dates.max()
        dates = [str((start + step * (i + 1)).date()) for i in range(horizon)]
    else:
        dates = ["t+" + str(i + 1) for i in range(horizon)]
    interpretation = col + " projected to hold near its trailing " + str(window) + "-period average of " + format(avg, ".2f")
else:
    forecast, dates, interpretation = [], [], "no numeric column available to forecast"
result = {
    "forecast": forecast,
    "dates": dates,
    "model": "7-period moving average",
    "interpretation": interpretation,
}
`, table, horizonDays)

	return Plan{
		Intent: IntentForecast,
		Code:   code,
		ChartSpec: ChartSpec{
			Type:   "line",
			Data:   map[string]any{"source": "result.forecast"},
			Layout: map[string]any{"title": "Forecast"},
		},
	}
}

// correlationPlan computes each numeric column's Pearson correlation
// against a target column named in query (falling back to the last
// numeric column), matching PearsonCorrelation below.
func correlationPlan(query string, tables []string) Plan {
	table := tables[0]
	code := fmt.Sprintf(`df = tables[%q]
query_text = %q
numeric = df.select_dtypes(include="number")
cols = list(numeric.columns)
target = None
q_lower = query_text.lower()
for c in cols:
    if c.lower() in q_lower:
        target = c
        break
if target is None and cols:
    target = cols[-1]
correlations = {}
if target:
    for c in cols:
        if c == target:
            continue
        correlations[c] = float(numeric[c].corr(numeric[target]))
top_factors = sorted(correlations, key=lambda c: abs(correlations[c]), reverse=True)
result = {
    "correlations": correlations,
    "top_factors": top_factors,
    "methodology": ("Pearson correlation against " + target) if target else "no numeric target column found",
}
`, table, query)

	return Plan{
		Intent: IntentCorrelation,
		Code:   code,
		ChartSpec: ChartSpec{
			Type:   "heatmap",
			Data:   map[string]any{"source": "result.correlations"},
			Layout: map[string]any{"title": "Correlation"},
		},
	}
}

// anomalyPlan flags points more than 3 standard deviations from the mean
// of the first numeric column, matching ZScore below.
func anomalyPlan(tables []string) Plan {
	table := tables[0]
	code := fmt.Sprintf(`df = tables[%q]
numeric_cols = [c for c in df.select_dtypes(include="number").columns]
col = numeric_cols[0] if numeric_cols else None
threshold = 3.0
if col:
    mean = df[col].mean()
    std = df[col].std() or 1.0
    z = (df[col] - mean) / std
    flagged = df.index[z.abs() > threshold]
    anomalies = flagged.tolist()
    anomaly_values = df.loc[flagged, col].tolist()
    interpretation = str(len(anomalies)) + " row(s) in " + col + " deviate more than " + str(threshold) + " standard deviations from the mean"
else:
    anomalies, anomaly_values, interpretation = [], [], "no numeric column available to check for anomalies"
result = {
    "anomalies": anomalies,
    "anomaly_values": anomaly_values,
    "threshold_used": threshold,
    "interpretation": interpretation,
}
`, table)

	return Plan{
		Intent: IntentAnomaly,
		Code:   code,
		ChartSpec: ChartSpec{
			Type:   "scatter",
			Data:   map[string]any{"source": "result.anomalies"},
			Layout: map[string]any{"title": "Anomalies"},
		},
	}
}

// simulationPlan runs a Monte Carlo perturbation of the first numeric
// column's mean by a percentage change extracted from the query text
// (default changePercentDefault), matching MonteCarloSimulate below.
func simulationPlan(query string, tables []string) Plan {
	table := tables[0]
	changePct := extractChangePercent(query)
	code := fmt.Sprintf(`import random
df = tables[%q]
numeric_cols = [c for c in df.select_dtypes(include="number").columns]
col = numeric_cols[0] if numeric_cols else None
baseline = float(df[col].mean()) if col else 0.0
change_pct = %g
runs = %d
mean_shift = change_pct / 100
std_shift = abs(change_pct) / 300
distribution = sorted(baseline * (1 + random.gauss(mean_shift, std_shift)) for _ in range(runs))

def pct(p):
    idx = min(len(distribution) - 1, max(0, round(p / 100 * (len(distribution) - 1))))
    return distribution[idx]

if col:
    scenarios = {"low": pct(10), "expected": pct(50), "high": pct(90)}
    confidence_interval = [pct(2.5), pct(97.5)]
    sensitivity_analysis = format(change_pct, "g") + "%% change applied to " + col
    interpretation = "expected " + col + " shifts to " + format(scenarios["expected"], ".2f") + " under a " + format(change_pct, "g") + "%% change"
else:
    scenarios = {"low": 0.0, "expected": 0.0, "high": 0.0}
    confidence_interval = [0.0, 0.0]
    sensitivity_analysis = "no numeric column available"
    interpretation = "no numeric column to simulate"
result = {
    "baseline": baseline,
    "scenarios": scenarios,
    "distribution": distribution,
    "confidence_interval": confidence_interval,
    "sensitivity_analysis": sensitivity_analysis,
    "interpretation": interpretation,
}
`, table, changePct, simulationRunsDefault)

	return Plan{
		Intent: IntentSimulation,
		Code:   code,
		ChartSpec: ChartSpec{
			Type:   "histogram",
			Data:   map[string]any{"source": "result.distribution"},
			Layout: map[string]any{"title": "Simulation outcomes"},
		},
	}
}

// extractChangePercent looks for a "N%" or "N percent" token in the query,
// defaulting to changePercentDefault when none is present.
func extractChangePercent(query string) float64 {
	fields := strings.Fields(query)
	for i, f := range fields {
		trimmed := strings.TrimSuffix(f, "%")
		if trimmed == f && (i+1 >= len(fields) || !strings.EqualFold(fields[i+1], "percent")) {
			continue
		}
		var pct float64
		if _, err := fmt.Sscanf(trimmed, "%g", &pct); err == nil {
			return pct
		}
	}
	return changePercentDefault
}

// PearsonCorrelation computes the Pearson product-moment correlation
// coefficient between two equal-length series. Returns 0 for mismatched
// lengths or zero-variance input.
func PearsonCorrelation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var numerator, sumSqX, sumSqY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		numerator += dx * dy
		sumSqX += dx * dx
		sumSqY += dy * dy
	}
	denom := math.Sqrt(sumSqX * sumSqY)
	if denom == 0 {
		return 0
	}
	return numerator / denom
}

// Percentile returns the value at the given percentile (0-100) of data
// using linear interpolation between closest ranks.
func Percentile(data []float64, pct float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := (pct / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// ZScore returns (value-mean)/stddev over data, using the sample
// standard deviation. Returns 0 if the series has zero variance.
func ZScore(data []float64, value float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	std := StdDev(data, mean)
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// Mean returns the arithmetic mean of data, 0 for an empty series.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev returns the sample standard deviation of data around mean.
func StdDev(data []float64, mean float64) float64 {
	if len(data) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)-1))
}

// MovingAverageForecast extends series by horizon steps using the trailing
// simple moving average of the last window points as the flat projection
// for every future step. window is clamped to len(series).
func MovingAverageForecast(series []float64, window, horizon int) []float64 {
	if len(series) == 0 || horizon <= 0 {
		return nil
	}
	if window <= 0 || window > len(series) {
		window = len(series)
	}
	avg := Mean(series[len(series)-window:])

	forecast := make([]float64, horizon)
	for i := range forecast {
		forecast[i] = avg
	}
	return forecast
}

// MonteCarloSimulate runs n perturbation trials of baseline by changePct,
// using a caller-supplied source of standard-normal draws so the function
// itself stays deterministic and testable. Each trial computes
// baseline * (1 + Normal(changePct/100, |changePct|/300)). n is capped at
// simulationRunsCap.
func MonteCarloSimulate(baseline, changePct float64, n int, normal func() float64) []float64 {
	if n <= 0 {
		n = simulationRunsDefault
	}
	if n > simulationRunsCap {
		n = simulationRunsCap
	}
	meanShift := changePct / 100
	stdShift := math.Abs(changePct) / 300

	outcomes := make([]float64, n)
	for i := 0; i < n; i++ {
		shift := meanShift + stdShift*normal()
		outcomes[i] = baseline * (1 + shift)
	}
	return outcomes
}
