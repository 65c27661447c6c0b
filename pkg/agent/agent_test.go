package agent

import (
	"context"
	"testing"
)

type stubLLM struct {
	response string
	err      error
}

func (s stubLLM) Complete(_ context.Context, _, _ string, _ int, _ float64) (string, error) {
	return s.response, s.err
}

func TestCrew_SequentialChainsPreviousOutput(t *testing.T) {
	first := &Task{Description: "first", Agent: &Agent{Role: "a", LLM: stubLLM{response: "step1"}}}
	second := &Task{Description: "second", Agent: &Agent{Role: "b", LLM: stubLLM{response: "step2"}}}

	crew := &Crew{Tasks: []*Task{first, second}, Process: ProcessSequential}
	out, err := crew.Kickoff(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "step2" {
		t.Errorf("expected final task output, got %q", out)
	}
	if first.Output() != "step1" {
		t.Errorf("expected first task output recorded, got %q", first.Output())
	}
}

func TestCrew_HierarchicalRespectsDependsOn(t *testing.T) {
	base := &Task{Description: "base", Agent: &Agent{Role: "a", LLM: stubLLM{response: "base-out"}}}
	dependent := &Task{Description: "dependent", Agent: &Agent{Role: "b", LLM: stubLLM{response: "dep-out"}}, DependsOn: []*Task{base}}

	crew := &Crew{Tasks: []*Task{dependent, base}, Process: ProcessHierarchical}
	out, err := crew.Kickoff(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "dep-out" {
		t.Errorf("expected dependent task output last, got %q", out)
	}
}

func TestCrew_DetectsCycle(t *testing.T) {
	a := &Task{Description: "a", Agent: &Agent{Role: "a", LLM: stubLLM{}}}
	b := &Task{Description: "b", Agent: &Agent{Role: "b", LLM: stubLLM{}}, DependsOn: []*Task{a}}
	a.DependsOn = []*Task{b}

	crew := &Crew{Tasks: []*Task{a, b}, Process: ProcessHierarchical}
	if _, err := crew.Kickoff(context.Background()); err == nil {
		t.Fatal("expected cycle detection error")
	}
}
