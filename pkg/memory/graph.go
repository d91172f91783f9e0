package memory

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/pkg/errors"
)

// DefaultTraversalLimit caps graph results when the caller does not say.
// Without a cap, traversal from a densely connected hub node is unbounded.
const DefaultTraversalLimit = 50

var relationshipPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)

/*
Graph manages typed, weighted, directional edges between memories and the
bounded traversal over them. Edges survive the archiving of either
endpoint; only unlink removes them.
*/
type Graph struct {
	backend Backend
}

func NewGraph(backend Backend) *Graph {
	return &Graph{backend: backend}
}

// LinkRequest describes one edge to create.
type LinkRequest struct {
	SourceID      string
	TargetID      string
	Relationship  string
	Weight        float64
	Bidirectional bool
	Reason        string
}

/*
Link creates one edge row. Bidirectionality is a flag on the edge, not a
second row. Both endpoints must exist (archived is fine); weight must be in
[0,1]; self-loops are rejected. All validation happens before anything is
written.
*/
func (g *Graph) Link(ctx context.Context, req LinkRequest) (*Edge, error) {
	if req.Weight < 0 || req.Weight > 1 {
		return nil, errors.Validation("weight %v outside [0,1]", req.Weight)
	}
	if !relationshipPattern.MatchString(req.Relationship) {
		return nil, errors.Validation("malformed relationship type %q", req.Relationship)
	}
	if req.SourceID == req.TargetID {
		return nil, errors.Validation("self-loops are not allowed")
	}

	if _, err := g.backend.GetMemory(ctx, req.SourceID); err != nil {
		return nil, err
	}
	if _, err := g.backend.GetMemory(ctx, req.TargetID); err != nil {
		return nil, err
	}

	edge := &Edge{
		ID:            uuid.NewString(),
		SourceID:      req.SourceID,
		TargetID:      req.TargetID,
		Relationship:  req.Relationship,
		Weight:        req.Weight,
		Bidirectional: req.Bidirectional,
		Reason:        req.Reason,
		CreatedAt:     time.Now().UTC(),
	}

	if err := g.backend.PutEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

/*
Unlink removes every edge between source and target, optionally filtered by
relationship type, and reports how many went away. Removing edges that do
not exist is not an error; the count is simply zero.
*/
func (g *Graph) Unlink(ctx context.Context, source, target, relationship string) (int, error) {
	return g.backend.DeleteEdges(ctx, source, target, relationship)
}

// Neighbor annotates one edge as seen from a given memory.
type Neighbor struct {
	NeighborID    string  `json:"id"`
	Relationship  string  `json:"relationship"`
	Weight        float64 `json:"weight"`
	Direction     string  `json:"direction"` // "out" or "in"
	Bidirectional bool    `json:"bidirectional"`
	Reason        string  `json:"reason,omitempty"`
}

/*
Related returns every edge where id is the source, plus edges where id is
the target of a bidirectional edge. Directional incoming edges are not
reported; the relationship reads one way.
*/
func (g *Graph) Related(ctx context.Context, id string) ([]Neighbor, error) {
	if _, err := g.backend.GetMemory(ctx, id); err != nil {
		return nil, err
	}

	edges, err := g.backend.EdgesTouching(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	for _, e := range edges {
		switch {
		case e.SourceID == id:
			out = append(out, Neighbor{
				NeighborID:    e.TargetID,
				Relationship:  e.Relationship,
				Weight:        e.Weight,
				Direction:     "out",
				Bidirectional: e.Bidirectional,
				Reason:        e.Reason,
			})
		case e.TargetID == id && e.Bidirectional:
			out = append(out, Neighbor{
				NeighborID:    e.SourceID,
				Relationship:  e.Relationship,
				Weight:        e.Weight,
				Direction:     "in",
				Bidirectional: true,
				Reason:        e.Reason,
			})
		}
	}
	return out, nil
}

// TraversalResult is a bounded breadth-first expansion from a start node.
type TraversalResult struct {
	Nodes     []*Memory
	Truncated bool
}

type frontierEdge struct {
	neighborID string
	weight     float64
}

/*
Traverse walks the graph breadth-first from startID, following outgoing
edges and bidirectional edges in either direction, up to maxDepth hops.
resultLimit is a hard cap on returned nodes: when a level would overflow
it, edges are consumed in descending weight order until the cap is hit and
the result is marked truncated. Visited tracking guarantees each node is
emitted at most once even through cycles. maxDepth zero returns only the
start node. Archived memories are followed through (their edges are live)
but not emitted.
*/
func (g *Graph) Traverse(ctx context.Context, startID string, maxDepth, resultLimit int) (*TraversalResult, error) {
	start, err := g.backend.GetMemory(ctx, startID)
	if err != nil {
		return nil, err
	}
	if resultLimit <= 0 {
		resultLimit = DefaultTraversalLimit
	}

	result := &TraversalResult{Nodes: []*Memory{start}}
	visited := map[string]bool{startID: true}
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		candidates, err := g.collectFrontier(ctx, frontier, visited)
		if err != nil {
			return nil, err
		}

		// Strongest relationships first, so the cap keeps the edges that
		// matter when a hub node would blow the budget.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].weight > candidates[j].weight
		})

		var next []string
		for _, cand := range candidates {
			if visited[cand.neighborID] {
				continue
			}
			if len(result.Nodes) >= resultLimit {
				result.Truncated = true
				break
			}
			visited[cand.neighborID] = true

			node, err := g.backend.GetMemory(ctx, cand.neighborID)
			if errors.IsKind(err, errors.KindNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}

			next = append(next, cand.neighborID)
			if node.Archived() {
				continue
			}
			result.Nodes = append(result.Nodes, node)
		}
		frontier = next
	}

	return result, nil
}

func (g *Graph) collectFrontier(ctx context.Context, frontier []string, visited map[string]bool) ([]frontierEdge, error) {
	var out []frontierEdge
	for _, id := range frontier {
		edges, err := g.backend.EdgesTouching(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			var neighbor string
			switch {
			case e.SourceID == id:
				neighbor = e.TargetID
			case e.TargetID == id && e.Bidirectional:
				neighbor = e.SourceID
			default:
				continue
			}
			if visited[neighbor] {
				continue
			}
			out = append(out, frontierEdge{neighborID: neighbor, weight: e.Weight})
		}
	}
	return out, nil
}
