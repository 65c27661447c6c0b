package monitor

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAlertBus_PublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewAlertBus(zap.NewNop())
	ch1, unsub1 := bus.Subscribe(1)
	ch2, unsub2 := bus.Subscribe(1)
	defer unsub1()
	defer unsub2()

	bus.Publish(Alert{Metric: MetricDailyRevenue})

	for _, ch := range []<-chan Alert{ch1, ch2} {
		select {
		case a := <-ch:
			if a.Metric != MetricDailyRevenue {
				t.Errorf("unexpected alert: %+v", a)
			}
		case <-time.After(time.Second):
			t.Fatal("expected alert delivered")
		}
	}
}

func TestAlertBus_UnsubscribeRemovesListener(t *testing.T) {
	bus := NewAlertBus(zap.NewNop())
	_, unsubscribe := bus.Subscribe(1)
	unsubscribe()

	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", got)
	}
}

func TestAlertBus_PublishOrderingIsPreserved(t *testing.T) {
	bus := NewAlertBus(zap.NewNop())
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Publish(Alert{Metric: MetricOrderCount, DeviationPct: 1})
	bus.Publish(Alert{Metric: MetricOrderCount, DeviationPct: 2})
	bus.Publish(Alert{Metric: MetricOrderCount, DeviationPct: 3})

	for _, want := range []float64{1, 2, 3} {
		select {
		case a := <-ch:
			if a.DeviationPct != want {
				t.Errorf("expected ordered delivery, got %f want %f", a.DeviationPct, want)
			}
		case <-time.After(time.Second):
			t.Fatal("expected alert delivered")
		}
	}
}
