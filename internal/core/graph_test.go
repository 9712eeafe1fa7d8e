package core

import (
	"reflect"
	"testing"
)

func graphOf(deps map[string][]string) Graph {
	g := make(Graph, len(deps))
	for id, d := range deps {
		g[id] = &WorkItem{ID: id, Title: id, Dependencies: d, Level: LevelTask}
	}
	return g
}

func TestReady_DependencySatisfaction(t *testing.T) {
	g := graphOf(map[string][]string{
		"a": {},
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	})

	tests := []struct {
		name      string
		completed map[string]bool
		want      []string
	}{
		{"nothing done", map[string]bool{}, []string{"a"}},
		{"root done", map[string]bool{"a": true}, []string{"b", "c"}},
		{"one branch done", map[string]bool{"a": true, "b": true}, []string{"c"}},
		{"join ready", map[string]bool{"a": true, "b": true, "c": true}, []string{"d"}},
		{"all done", map[string]bool{"a": true, "b": true, "c": true, "d": true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ready(g, tt.completed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Ready() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReady_CycleNeverErrorsAndDrainsToEmpty(t *testing.T) {
	// b and c form a 2-cycle; a is the only acyclic prerequisite. Once a is
	// done the cyclic remainder stays un-ready forever, which the level
	// runner treats as completion, not a stall.
	g := graphOf(map[string][]string{
		"a": {},
		"b": {"a", "c"},
		"c": {"b"},
	})

	if got := Ready(g, map[string]bool{}); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("Ready() = %#v, want [a]", got)
	}
	if got := Ready(g, map[string]bool{"a": true}); got != nil {
		t.Fatalf("Ready() with cyclic remainder = %#v, want empty", got)
	}
	// Completing one cycle member releases the other.
	if got := Ready(g, map[string]bool{"a": true, "b": true}); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("Ready() = %#v, want [c]", got)
	}
}

func TestPending(t *testing.T) {
	g := graphOf(map[string][]string{
		"a": {},
		"b": {"a"},
		"c": {"b"},
	})
	completed := map[string]bool{"a": true}
	ready := Ready(g, completed)
	if got := Pending(g, completed, ready); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("Pending() = %#v, want [c]", got)
	}
}

func TestGraphValidate_DanglingDependency(t *testing.T) {
	g := graphOf(map[string][]string{
		"a": {},
		"b": {"ghost"},
	})
	err := g.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want dependency error")
	}
	if !IsCategory(err, ErrCatDependency) {
		t.Fatalf("Validate() category = %s, want %s", GetCategory(err), ErrCatDependency)
	}
}

func TestParseGraph(t *testing.T) {
	data := []byte(`{
		"task_1": {"id": "task_1", "title": "Start server", "description": "boot", "dep": []},
		"task_2": {"id": "task_2", "title": "Migrate data", "description": "copy", "dep": ["task_1"], "capability_group": "os"}
	}`)

	g, err := ParseGraph(data, LevelTask)
	if err != nil {
		t.Fatalf("ParseGraph() error = %v", err)
	}
	if len(g) != 2 {
		t.Fatalf("ParseGraph() len = %d, want 2", len(g))
	}
	if g["task_2"].CapabilityGroup != "os" {
		t.Fatalf("capability_group = %q, want os", g["task_2"].CapabilityGroup)
	}
	if g["task_1"].Level != LevelTask {
		t.Fatalf("level = %s, want %s", g["task_1"].Level, LevelTask)
	}
}

func TestParseGraph_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `next_tasks: [1]`},
		{"wrong shape", `[1, 2, 3]`},
		{"dangling dep", `{"t1": {"id": "t1", "title": "x", "dep": ["nope"]}}`},
		{"missing title", `{"t1": {"id": "t1", "dep": []}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGraph([]byte(tt.data), LevelStep); err == nil {
				t.Fatal("ParseGraph() = nil error, want failure")
			}
		})
	}
}

func TestLevelFiner(t *testing.T) {
	if LevelRequest.Finer() != LevelTask || LevelTask.Finer() != LevelSubtask || LevelSubtask.Finer() != LevelStep {
		t.Fatal("Finer() ordering broken")
	}
	if !LevelStep.IsLeaf() || LevelTask.IsLeaf() {
		t.Fatal("IsLeaf() wrong")
	}
}
