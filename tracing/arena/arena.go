package arena

import (
	"iter"

	"github.com/ethereum/go-ethereum/common"
)

const defaultCapacity = 8

// PushTraceKind selects how PushTrace links a new node
type PushTraceKind uint8

const (
	// PushAndAttachToParent stores the node and links it into the parent's
	// children and ordering.
	PushAndAttachToParent PushTraceKind = iota
	// PushOnly stores the node without linking it into the call graph, e.g.
	// for precompile calls.
	PushOnly
)

// IsAttachToParent reports whether the pushed node is linked into its parent
func (k PushTraceKind) IsAttachToParent() bool {
	return k == PushAndAttachToParent
}

// String implements fmt.Stringer
func (k PushTraceKind) String() string {
	if k == PushOnly {
		return "push-only"
	}
	return "push-and-attach"
}

// CallTraceArena is a flat store of call trace nodes, linked by index.
// Index 0 is always the entry frame.
//
// The arena is not safe for concurrent use.
type CallTraceArena struct {
	nodes []CallTraceNode
}

// NewCallTraceArena returns an arena holding the root placeholder only
func NewCallTraceArena() *CallTraceArena {
	a := &CallTraceArena{nodes: make([]CallTraceNode, 0, defaultCapacity)}
	a.Clear()
	return a
}

// Clear drops every node and reinstates the root placeholder. The allocated
// capacity is kept; slots past the length are zeroed too so that no child or
// ordering slices of an earlier, longer trace stay reachable.
func (a *CallTraceArena) Clear() {
	clear(a.nodes[:cap(a.nodes)])
	a.nodes = append(a.nodes[:0], CallTraceNode{})
}

// Nodes returns the nodes in the arena. The slice must not be modified.
func (a *CallTraceArena) Nodes() []CallTraceNode {
	a.ensureRoot()
	return a.nodes
}

// NodesMut returns a pointer to the node slice for in-place edits.
func (a *CallTraceArena) NodesMut() *[]CallTraceNode {
	a.ensureRoot()
	return &a.nodes
}

// IntoNodes hands the node slice to the caller and leaves the arena with a
// fresh root placeholder.
func (a *CallTraceArena) IntoNodes() []CallTraceNode {
	a.ensureRoot()
	nodes := a.nodes
	a.nodes = nil
	a.Clear()
	return nodes
}

// Len returns the number of nodes, root included
func (a *CallTraceArena) Len() int {
	a.ensureRoot()
	return len(a.nodes)
}

// Node returns the node at idx for enrichment. It panics when idx is out of range.
func (a *CallTraceArena) Node(idx int) *CallTraceNode {
	a.ensureRoot()
	return &a.nodes[idx]
}

// Root returns the entry frame
func (a *CallTraceArena) Root() *CallTraceNode {
	return a.Node(0)
}

// TraceAddresses yields, for every node in arena order, the call's address
// followed by its caller. Duplicates are not filtered.
func (a *CallTraceArena) TraceAddresses() iter.Seq[common.Address] {
	return func(yield func(common.Address) bool) {
		for i := range a.Nodes() {
			trace := &a.nodes[i].Trace
			if !yield(trace.Address) || !yield(trace.Caller) {
				return
			}
		}
	}
}

// PushTrace appends newTrace to the arena and returns its index.
//
// entry must be the parent of newTrace or one of its ancestors: the parent is
// found by following the most recently added child from entry until a node
// one level shallower than newTrace is reached. A depth-0 trace overwrites
// the root in place.
//
// PushTrace panics with a *DisconnectedTraceError when that walk runs out of
// children, which means the depth sequence fed in does not form a tree.
func (a *CallTraceArena) PushTrace(entry int, kind PushTraceKind, newTrace CallTrace) int {
	a.ensureRoot()
	if newTrace.Depth == 0 {
		a.nodes[0].Trace = newTrace
		return 0
	}
	if entry < 0 || entry >= len(a.nodes) {
		panic(&DisconnectedTraceError{Entry: entry, At: entry, Depth: newTrace.Depth})
	}

	for cur := entry; ; {
		if a.nodes[cur].Trace.Depth == newTrace.Depth-1 {
			id := len(a.nodes)
			parent := cur
			a.nodes = append(a.nodes, CallTraceNode{
				Idx:    id,
				Parent: &parent,
				Trace:  newTrace,
			})

			if kind.IsAttachToParent() {
				p := &a.nodes[cur]
				p.Ordering = append(p.Ordering, TraceMemberOrder{Kind: OrderCall, Index: len(p.Children)})
				p.Children = append(p.Children, id)
			}
			return id
		}

		children := a.nodes[cur].Children
		if len(children) == 0 {
			panic(&DisconnectedTraceError{Entry: entry, At: cur, Depth: newTrace.Depth})
		}
		cur = children[len(children)-1]
	}
}

// ensureRoot makes the zero value usable
func (a *CallTraceArena) ensureRoot() {
	if len(a.nodes) == 0 {
		a.nodes = append(a.nodes, CallTraceNode{})
	}
}
