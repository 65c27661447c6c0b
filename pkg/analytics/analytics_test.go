package analytics

import (
	"errors"
	"math"
	"testing"
)

func TestDetectIntent_ForecastBeatsCorrelationWhenBothPresent(t *testing.T) {
	got := DetectIntent("forecast the correlation between revenue and ad spend")
	if got != IntentForecast {
		t.Errorf("expected forecast to win precedence, got %s", got)
	}
}

func TestDetectIntent_Anomaly(t *testing.T) {
	if got := DetectIntent("are there any anomalies in daily signups?"); got != IntentAnomaly {
		t.Errorf("expected anomaly, got %s", got)
	}
}

func TestDetectIntent_NoKeywordMatchIsNone(t *testing.T) {
	if got := DetectIntent("show me the customers table"); got != IntentNone {
		t.Errorf("expected none, got %s", got)
	}
}

func TestPlanner_Plan_NoIntentReturnsErrNoAnalyticsIntent(t *testing.T) {
	p := NewPlanner()
	_, err := p.Plan("show me the customers table", []string{"customers"})
	if !errors.Is(err, ErrNoAnalyticsIntent) {
		t.Fatalf("expected ErrNoAnalyticsIntent, got %v", err)
	}
}

func TestDetectIntent_Simulation(t *testing.T) {
	if got := DetectIntent("what if we raised prices 15%?"); got != IntentSimulation {
		t.Errorf("expected simulation, got %s", got)
	}
}

func TestPlanner_Plan_RequiresAtLeastOneTable(t *testing.T) {
	p := NewPlanner()
	if _, err := p.Plan("forecast revenue", nil); err == nil {
		t.Fatal("expected error for empty table list")
	}
}

func TestPlanner_Plan_ChartTypeIsAllowed(t *testing.T) {
	p := NewPlanner()
	for _, q := range []string{"forecast revenue", "correlate revenue and spend", "find anomalies", "summarize orders", "what if we raise prices 10%"} {
		plan, err := p.Plan(q, []string{"orders"})
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", q, err)
		}
		if !allowedChartTypes[plan.ChartSpec.Type] {
			t.Errorf("chart type %q for query %q is not in the allowed set", plan.ChartSpec.Type, q)
		}
	}
}

func TestPearsonCorrelation_PerfectPositive(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	if got := PearsonCorrelation(x, y); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected correlation 1.0, got %f", got)
	}
}

func TestPearsonCorrelation_MismatchedLengthsReturnsZero(t *testing.T) {
	if got := PearsonCorrelation([]float64{1, 2}, []float64{1}); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestPercentile_Median(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	if got := Percentile(data, 50); got != 3 {
		t.Errorf("expected median 3, got %f", got)
	}
}

func TestZScore_ZeroVarianceReturnsZero(t *testing.T) {
	if got := ZScore([]float64{5, 5, 5}, 5); got != 0 {
		t.Errorf("expected 0 for zero-variance series, got %f", got)
	}
}

func TestMovingAverageForecast_FlatProjection(t *testing.T) {
	series := []float64{10, 20, 30}
	forecast := MovingAverageForecast(series, 3, 2)
	if len(forecast) != 2 {
		t.Fatalf("expected 2 forecast points, got %d", len(forecast))
	}
	for _, v := range forecast {
		if v != 20 {
			t.Errorf("expected flat projection at mean 20, got %f", v)
		}
	}
}

func TestMonteCarloSimulate_CapsRunCount(t *testing.T) {
	outcomes := MonteCarloSimulate(100, 10, 999999, func() float64 { return 0 })
	if len(outcomes) != simulationRunsCap {
		t.Errorf("expected run count capped at %d, got %d", simulationRunsCap, len(outcomes))
	}
}

func TestMonteCarloSimulate_ZeroNormalDrawGivesMeanShift(t *testing.T) {
	outcomes := MonteCarloSimulate(100, 10, 5, func() float64 { return 0 })
	for _, v := range outcomes {
		if math.Abs(v-110) > 1e-9 {
			t.Errorf("expected 110 with zero-draw normal, got %f", v)
		}
	}
}
