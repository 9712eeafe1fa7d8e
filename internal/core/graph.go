package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Graph is one level's sibling plan: item id to item, with dependency edges
// expressed as sibling-id sets on each item.
//
// Graphs are not required to be acyclic. A dependency cycle means the items
// involved may legitimately execute more than once; readiness is dependency
// satisfaction, not topological order.
type Graph map[string]*WorkItem

// ParseGraph decodes a planner reply into a Graph and validates it.
// The reply is a JSON object mapping item id to item.
func ParseGraph(data []byte, level Level) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding plan graph: %w", err)
	}
	for id, item := range g {
		if item == nil {
			return nil, ErrValidation("ITEM_NIL", fmt.Sprintf("plan entry %s is null", id))
		}
		if item.ID == "" {
			item.ID = id
		}
		item.Level = level
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks that every declared dependency resolves to an id present
// in the same graph. A dangling reference is a planner defect, not a
// transient disagreement, so it is surfaced as a hard error.
func (g Graph) Validate() error {
	for id, item := range g {
		for _, dep := range item.Dependencies {
			if _, ok := g[dep]; !ok {
				return ErrDependency(fmt.Sprintf(
					"item %s depends on %s, which is not in the plan", id, dep))
			}
		}
	}
	return nil
}

// IDs returns the graph's item ids in sorted order.
func (g Graph) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ready computes the schedulable set: every id that is not yet completed
// and whose full dependency set is completed. Pure and deterministic; the
// result is sorted so traces and tests are stable.
//
// An empty result is the level's sole termination signal. Cyclic remainders
// never become ready and never raise an error; the caller treats "no ready
// work" as level completion.
func Ready(g Graph, completed map[string]bool) []string {
	var next []string
	for id, item := range g {
		if completed[id] {
			continue
		}
		ok := true
		for _, dep := range item.Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			next = append(next, id)
		}
	}
	sort.Strings(next)
	return next
}

// Pending returns the ids that are neither completed nor in the ready set,
// for trace output.
func Pending(g Graph, completed map[string]bool, ready []string) []string {
	inReady := make(map[string]bool, len(ready))
	for _, id := range ready {
		inReady[id] = true
	}
	var pending []string
	for id := range g {
		if !completed[id] && !inReady[id] {
			pending = append(pending, id)
		}
	}
	sort.Strings(pending)
	return pending
}
