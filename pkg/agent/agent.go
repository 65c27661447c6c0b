// Package agent provides the minimal agent/task/crew vocabulary the
// pipeline uses to describe "consult agent A with tools T about task X."
// It is not a reimplementation of any particular agent framework; the
// shape follows the teacher's named, dependency-aware execution units in
// pkg/services/dag/node_executor.go, generalized from DAG nodes to
// sequential/hierarchical task lists.
package agent

import (
	"context"
	"fmt"
)

// LLMInterface is the minimal completion contract an Agent needs. Concrete
// providers (pkg/llm.Client) satisfy this without the agent package
// depending on any specific vendor SDK.
type LLMInterface interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
}

// Tool is a capability object an Agent can invoke by name.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Agent pairs a role/goal/backstory with an LLM and the tools it may call.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
	Tools     []Tool
	LLM       LLMInterface
}

// systemPrompt composes the agent's persona into a system message.
func (a *Agent) systemPrompt() string {
	return fmt.Sprintf("You are %s. Goal: %s. Backstory: %s", a.Role, a.Goal, a.Backstory)
}

// Complete runs the agent's LLM against a task-supplied user prompt.
func (a *Agent) Complete(ctx context.Context, userPrompt string, maxTokens int, temperature float64) (string, error) {
	return a.LLM.Complete(ctx, a.systemPrompt(), userPrompt, maxTokens, temperature)
}

// Task is one unit of work assigned to an Agent, optionally depending on
// the output of earlier tasks.
type Task struct {
	Description    string
	ExpectedOutput string
	Agent          *Agent
	DependsOn      []*Task

	output string
	ran    bool
}

// Output returns the task's textual result once it has run.
func (t *Task) Output() string { return t.output }

// Process selects how a Crew runs its tasks.
type Process string

const (
	// ProcessSequential runs tasks strictly in list order.
	ProcessSequential Process = "sequential"
	// ProcessHierarchical runs tasks in dependency order, resolved via a
	// topological pass over DependsOn.
	ProcessHierarchical Process = "hierarchical"
)

// Crew is an ordered list of Tasks run under a Process.
type Crew struct {
	Tasks   []*Task
	Process Process
}

// Kickoff runs every task, respecting dependencies, and returns the final
// task's textual output. Each task's prompt is its description plus the
// concatenated output of its dependencies (or, in sequential mode, of the
// immediately preceding task).
func (c *Crew) Kickoff(ctx context.Context) (string, error) {
	order := c.Tasks
	if c.Process == ProcessHierarchical {
		var err error
		order, err = topoSort(c.Tasks)
		if err != nil {
			return "", err
		}
	}

	for i, t := range order {
		prompt := t.Description
		deps := t.DependsOn
		if c.Process == ProcessSequential && len(deps) == 0 && i > 0 {
			deps = []*Task{order[i-1]}
		}
		for _, dep := range deps {
			if !dep.ran {
				return "", fmt.Errorf("task %q depends on unrun task", t.Description)
			}
			prompt = prompt + "\n\nPrevious result:\n" + dep.output
		}

		out, err := t.Agent.Complete(ctx, prompt, 0, 0)
		if err != nil {
			return "", fmt.Errorf("task %q failed: %w", t.Description, err)
		}
		t.output = out
		t.ran = true

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}

	if len(order) == 0 {
		return "", nil
	}
	return order[len(order)-1].output, nil
}

// topoSort orders tasks so every DependsOn entry runs before its
// dependent, failing on cycles.
func topoSort(tasks []*Task) ([]*Task, error) {
	visited := make(map[*Task]int) // 0=unvisited, 1=visiting, 2=done
	var order []*Task

	var visit func(t *Task) error
	visit = func(t *Task) error {
		switch visited[t] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("dependency cycle detected at task %q", t.Description)
		}
		visited[t] = 1
		for _, dep := range t.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[t] = 2
		order = append(order, t)
		return nil
	}

	for _, t := range tasks {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}
