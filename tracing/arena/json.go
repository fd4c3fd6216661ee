package arena

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type orderJSON struct {
	Call *int `json:"call,omitempty"`
	Log  *int `json:"log,omitempty"`
}

// MarshalJSON encodes the entry as {"call":n} or {"log":n}
func (o TraceMemberOrder) MarshalJSON() ([]byte, error) {
	idx := o.Index
	switch o.Kind {
	case OrderCall:
		return json.Marshal(orderJSON{Call: &idx})
	case OrderLog:
		return json.Marshal(orderJSON{Log: &idx})
	}
	return nil, fmt.Errorf("unknown order kind %d", o.Kind)
}

// UnmarshalJSON accepts exactly one of the call or log keys
func (o *TraceMemberOrder) UnmarshalJSON(data []byte) error {
	var raw orderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Call != nil && raw.Log == nil:
		*o = TraceMemberOrder{Kind: OrderCall, Index: *raw.Call}
	case raw.Log != nil && raw.Call == nil:
		*o = TraceMemberOrder{Kind: OrderLog, Index: *raw.Log}
	default:
		return fmt.Errorf("ordering entry must have exactly one of call or log: %s", data)
	}
	return nil
}

type nodeJSON struct {
	Idx      int                `json:"idx"`
	Parent   *int               `json:"parent"`
	Trace    CallTrace          `json:"trace"`
	Children []int              `json:"children"`
	Ordering []TraceMemberOrder `json:"ordering"`
	Logs     []CallLog          `json:"logs,omitempty"`
}

type arenaJSON struct {
	Nodes []nodeJSON `json:"nodes"`
}

// MarshalJSON dumps every node with its links
func (a *CallTraceArena) MarshalJSON() ([]byte, error) {
	nodes := a.Nodes()
	out := arenaJSON{Nodes: make([]nodeJSON, len(nodes))}
	for i := range nodes {
		n := &nodes[i]
		out.Nodes[i] = nodeJSON{
			Idx:      n.Idx,
			Parent:   n.Parent,
			Trace:    n.Trace,
			Children: nonNil(n.Children),
			Ordering: nonNil(n.Ordering),
			Logs:     n.Logs,
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a dump produced by MarshalJSON. The dump must form
// a tree in arena order: every parent precedes its children, children point
// back at the node listing them one level deeper, and the ordering lists
// each child and log exactly once in sequence.
func (a *CallTraceArena) UnmarshalJSON(data []byte) error {
	var in arenaJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "decode call trace arena")
	}
	if len(in.Nodes) == 0 {
		return errors.New("call trace arena dump has no root node")
	}

	nodes := make([]CallTraceNode, len(in.Nodes))
	for i, n := range in.Nodes {
		if n.Idx != i {
			return errors.Errorf("node at position %d has idx %d", i, n.Idx)
		}
		if i == 0 && n.Parent != nil {
			return errors.New("root node must not have a parent")
		}
		if i > 0 {
			if n.Parent == nil || *n.Parent < 0 || *n.Parent >= i {
				return errors.Errorf("node %d has invalid parent", i)
			}
			if want := in.Nodes[*n.Parent].Trace.Depth + 1; n.Trace.Depth != want {
				return errors.Errorf("node %d has depth %d, want %d", i, n.Trace.Depth, want)
			}
		}
		prev := i
		for _, c := range n.Children {
			if c <= prev || c >= len(in.Nodes) {
				return errors.Errorf("node %d has out of order child %d", i, c)
			}
			if p := in.Nodes[c].Parent; p == nil || *p != i {
				return errors.Errorf("node %d lists child %d of another parent", i, c)
			}
			prev = c
		}
		var calls, logs int
		for _, o := range n.Ordering {
			next := &calls
			if o.Kind == OrderLog {
				next = &logs
			}
			if o.Index != *next {
				return errors.Errorf("node %d has out of sequence %s ordering entry %d", i, o.Kind, o.Index)
			}
			*next++
		}
		if calls != len(n.Children) || logs != len(n.Logs) {
			return errors.Errorf("node %d ordering covers %d/%d children and %d/%d logs", i, calls, len(n.Children), logs, len(n.Logs))
		}
		nodes[i] = CallTraceNode{
			Idx:      n.Idx,
			Parent:   n.Parent,
			Trace:    n.Trace,
			Children: n.Children,
			Ordering: n.Ordering,
			Logs:     n.Logs,
		}
	}
	a.nodes = nodes
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
