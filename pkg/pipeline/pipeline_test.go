package pipeline

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

const testContext = "-- orders\nCREATE TABLE orders (id INT, total NUMERIC)\n"

type stubArchitect struct {
	sql []string
	i   int
}

func (a *stubArchitect) Generate(_ context.Context, _, _, _ string) (string, error) {
	s := a.sql[a.i]
	if a.i < len(a.sql)-1 {
		a.i++
	}
	return s, nil
}

type stubCritic struct {
	verdicts []CriticVerdict
	i        int
}

func (c *stubCritic) Review(_ context.Context, _, _, _ string) (CriticVerdict, error) {
	v := c.verdicts[c.i]
	if c.i < len(c.verdicts)-1 {
		c.i++
	}
	return v, nil
}

func TestRun_FirstAttemptSucceeds(t *testing.T) {
	p := New(
		&stubArchitect{sql: []string{"SELECT * FROM orders"}},
		&stubCritic{verdicts: []CriticVerdict{{Status: VerdictOK}}},
		SafetyValidator{},
		zap.NewNop(),
	)

	artifact, err := p.Run(context.Background(), "how many orders?", testContext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Status != StatusValid {
		t.Fatalf("expected valid, got %s (%s)", artifact.Status, artifact.Reason)
	}
	if artifact.Confidence != 0.95 {
		t.Errorf("expected first-attempt confidence 0.95, got %f", artifact.Confidence)
	}
	if artifact.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", artifact.Attempts)
	}
}

func TestRun_SucceedsOnRetryWithDecayedConfidence(t *testing.T) {
	p := New(
		&stubArchitect{sql: []string{"SELECT bad FROM missing_table", "SELECT * FROM orders"}},
		&stubCritic{verdicts: []CriticVerdict{
			{Status: VerdictError, CorrectionPlan: "use the orders table"},
			{Status: VerdictOK},
		}},
		SafetyValidator{},
		zap.NewNop(),
	)

	artifact, err := p.Run(context.Background(), "how many orders?", testContext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Status != StatusValid {
		t.Fatalf("expected valid, got %s (%s)", artifact.Status, artifact.Reason)
	}
	if artifact.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", artifact.Attempts)
	}
	if artifact.Confidence != 0.90 {
		t.Errorf("expected decayed confidence 0.90, got %f", artifact.Confidence)
	}
}

func TestRun_UnsafeShortCircuitsWithZeroConfidence(t *testing.T) {
	p := New(
		&stubArchitect{sql: []string{"DELETE FROM orders"}},
		&stubCritic{verdicts: []CriticVerdict{{Status: VerdictUnsafe, ErrorMessage: "mutates data"}}},
		SafetyValidator{},
		zap.NewNop(),
	)

	artifact, err := p.Run(context.Background(), "delete stale orders", testContext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Status != StatusUnsafe {
		t.Fatalf("expected unsafe, got %s", artifact.Status)
	}
	if artifact.SQL != "" {
		t.Errorf("expected empty SQL on unsafe verdict, got %q", artifact.SQL)
	}
	if artifact.Confidence != 0 {
		t.Errorf("expected zero confidence on unsafe verdict, got %f", artifact.Confidence)
	}
}

func TestRun_ExhaustsRetriesAndFloorsConfidence(t *testing.T) {
	p := New(
		&stubArchitect{sql: []string{"SELECT * FROM missing"}},
		&stubCritic{verdicts: []CriticVerdict{{Status: VerdictError, CorrectionPlan: "try again"}}},
		SafetyValidator{},
		zap.NewNop(),
	)

	artifact, err := p.Run(context.Background(), "how many missing rows?", testContext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", artifact.Status)
	}
	if artifact.Attempts != MaxAttempts {
		t.Errorf("expected %d attempts, got %d", MaxAttempts, artifact.Attempts)
	}
	if artifact.Confidence != 0.5 {
		t.Errorf("expected floor confidence 0.5, got %f", artifact.Confidence)
	}
}

func TestSafetyValidator_RejectsDMLToken(t *testing.T) {
	ok, reason := SafetyValidator{}.Check("SELECT * FROM orders; DROP TABLE orders", testContext)
	if ok {
		t.Fatal("expected DROP token to be rejected")
	}
	if reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestSafetyValidator_AllowsDMLKeywordInsideStringLiteral(t *testing.T) {
	ok, _ := SafetyValidator{}.Check("SELECT * FROM orders WHERE status = 'DELETE_REQUESTED'", testContext)
	if !ok {
		t.Fatal("expected DML-looking token inside a string literal to be allowed")
	}
}

func TestSafetyValidator_RejectsInjectionPayloadInStringLiteral(t *testing.T) {
	ok, reason := SafetyValidator{}.Check(
		"SELECT * FROM orders WHERE status = '1 UNION SELECT * FROM passwords'", testContext)
	if ok {
		t.Fatal("expected an injection-shaped string literal to be rejected")
	}
	if reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestSafetyValidator_RejectsTableOutsideFocusedContext(t *testing.T) {
	ok, reason := SafetyValidator{}.Check("SELECT * FROM employees", testContext)
	if ok {
		t.Fatal("expected table outside focused context to be rejected")
	}
	if reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestSafetyValidator_RejectsNonSelectLeadingStatement(t *testing.T) {
	ok, _ := SafetyValidator{}.Check("UPDATE orders SET total = 0", testContext)
	if ok {
		t.Fatal("expected non-SELECT/WITH leading statement to be rejected")
	}
}
