package plan

import (
	"errors"
	"testing"
)

func planWithTasks(tasks ...Task) *Document {
	return &Document{ID: "p1", SessionID: "s1", Title: "test plan", Tasks: tasks}
}

func TestValidateEmptyPlan(t *testing.T) {
	if err := Validate(planWithTasks()); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}
}

func TestValidateValidChain(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1},
		Task{ID: "b", Order: 2, DependsOn: []string{"a"}},
		Task{ID: "c", Order: 3, DependsOn: []string{"b"}},
	)
	if err := Validate(d); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}
}

func TestValidateDiamond(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1},
		Task{ID: "b", Order: 2, DependsOn: []string{"a"}},
		Task{ID: "c", Order: 3, DependsOn: []string{"a"}},
		Task{ID: "d", Order: 4, DependsOn: []string{"b", "c"}},
	)
	if err := Validate(d); err != nil {
		t.Fatalf("valid diamond rejected: %v", err)
	}
}

func TestValidateUnknownDependency(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1, DependsOn: []string{"ghost"}},
	)
	if err := Validate(d); !errors.Is(err, ErrUnknownDependency) {
		t.Errorf("expected ErrUnknownDependency, got %v", err)
	}
}

func TestValidateSelfDependency(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1, DependsOn: []string{"a"}},
	)
	if err := Validate(d); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidateThreeCycle(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1, DependsOn: []string{"c"}},
		Task{ID: "b", Order: 2, DependsOn: []string{"a"}},
		Task{ID: "c", Order: 3, DependsOn: []string{"b"}},
	)
	if err := Validate(d); !errors.Is(err, ErrCircularDependency) {
		t.Errorf("expected ErrCircularDependency, got %v", err)
	}
}

func TestValidateCycleBesideValidBranch(t *testing.T) {
	// A cycle anywhere in the graph rejects the whole plan even when other
	// tasks form a valid chain.
	d := planWithTasks(
		Task{ID: "ok1", Order: 1},
		Task{ID: "ok2", Order: 2, DependsOn: []string{"ok1"}},
		Task{ID: "x", Order: 3, DependsOn: []string{"y"}},
		Task{ID: "y", Order: 4, DependsOn: []string{"x"}},
	)
	if err := Validate(d); !errors.Is(err, ErrCircularDependency) {
		t.Errorf("expected ErrCircularDependency, got %v", err)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	d := planWithTasks(
		Task{ID: "a", Order: 1},
		Task{ID: "b", Order: 2, DependsOn: []string{"a"}},
	)
	for i := 0; i < 3; i++ {
		if err := Validate(d); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if d.Tasks[0].Status != "" && d.Tasks[0].Status != TaskPending {
		t.Errorf("validation mutated task status: %s", d.Tasks[0].Status)
	}
}
