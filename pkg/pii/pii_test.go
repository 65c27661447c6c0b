package pii

import "testing"

func TestScanQuery_CriticalBlocksRegardlessOfStrict(t *testing.T) {
	s := New(nil)
	_, proceed := s.ScanQuery("customer ssn is 123-45-6789", false)
	if proceed {
		t.Fatal("expected CRITICAL detection to block regardless of strict flag")
	}
}

func TestScanQuery_StrictBlocksNonLow(t *testing.T) {
	s := New(nil)
	result, proceed := s.ScanQuery("contact me at john@example.com", true)
	if result.RiskLevel == RiskLow {
		t.Fatalf("expected non-LOW risk for an email hit, got %s", result.RiskLevel)
	}
	if proceed {
		t.Fatal("expected strict mode to block a non-LOW risk query")
	}
}

func TestScanQuery_LowRiskProceeds(t *testing.T) {
	s := New(nil)
	result, proceed := s.ScanQuery("show total revenue for last quarter", false)
	if result.RiskLevel != RiskLow {
		t.Fatalf("expected LOW risk, got %s", result.RiskLevel)
	}
	if !proceed {
		t.Fatal("expected LOW risk query to proceed")
	}
}

func TestClassify_ThreeHighBucketHitsIsHigh(t *testing.T) {
	dets := []Detection{{Kind: KindEmail}, {Kind: KindPhone}, {Kind: KindAddress}}
	if got := classify(dets); got != RiskHigh {
		t.Errorf("expected HIGH, got %s", got)
	}
}

func TestClassify_OneHighBucketHitIsMedium(t *testing.T) {
	dets := []Detection{{Kind: KindEmail}}
	if got := classify(dets); got != RiskMedium {
		t.Errorf("expected MEDIUM, got %s", got)
	}
}

func TestClassify_AnyCriticalKindWins(t *testing.T) {
	dets := []Detection{{Kind: KindEmail}, {Kind: KindEmail}, {Kind: KindSSN}}
	if got := classify(dets); got != RiskCritical {
		t.Errorf("expected CRITICAL, got %s", got)
	}
}

func TestMask_Email(t *testing.T) {
	if got := Mask(KindEmail, "john@example.com"); got != "j***@example.com" {
		t.Errorf("got %s", got)
	}
}

func TestMask_SSN(t *testing.T) {
	if got := Mask(KindSSN, "123-45-6789"); got != "***-**-6789" {
		t.Errorf("got %s", got)
	}
}

func TestMask_CreditCard(t *testing.T) {
	if got := Mask(KindCreditCard, "4111-1111-1111-1111"); got != "****-****-****-1111" {
		t.Errorf("got %s", got)
	}
}

func TestRedact_IdempotentOnStringLeaf(t *testing.T) {
	s := New(nil)
	value := map[string]any{"email": "john@example.com"}
	once := s.Redact(value)
	twice := s.Redact(once)
	if once.(map[string]any)["email"] != twice.(map[string]any)["email"] {
		t.Errorf("redact is not idempotent: %v vs %v", once, twice)
	}
}

func TestRedact_PassesThroughNonStrings(t *testing.T) {
	s := New(nil)
	value := map[string]any{"count": 5, "active": true, "note": nil}
	got := s.Redact(value).(map[string]any)
	if got["count"] != 5 || got["active"] != true || got["note"] != nil {
		t.Errorf("expected scalars to pass through unchanged, got %v", got)
	}
}

func TestRedact_NeverMutatesInput(t *testing.T) {
	s := New(nil)
	original := map[string]any{"email": "john@example.com"}
	_ = s.Redact(original)
	if original["email"] != "john@example.com" {
		t.Errorf("input was mutated: %v", original)
	}
}
