package arena

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trace(depth int, addr, caller byte) CallTrace {
	return CallTrace{
		Depth:   depth,
		Address: common.BytesToAddress([]byte{addr}),
		Caller:  common.BytesToAddress([]byte{caller}),
	}
}

func TestNewArenaHasRootPlaceholder(t *testing.T) {
	a := NewCallTraceArena()
	require.Equal(t, 1, a.Len())
	root := a.Root()
	assert.Equal(t, 0, root.Idx)
	assert.True(t, root.IsRoot())
	assert.Equal(t, CallTrace{}, root.Trace)

	var zero CallTraceArena
	assert.Equal(t, 1, zero.Len())
}

func TestPushTraceScenario(t *testing.T) {
	a := NewCallTraceArena()

	assert.Equal(t, 0, a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01)))
	assert.Equal(t, common.BytesToAddress([]byte{0xaa}), a.Root().Trace.Address)

	assert.Equal(t, 1, a.PushTrace(0, PushAndAttachToParent, trace(1, 0xbb, 0xaa)))
	assert.Equal(t, []int{1}, a.Root().Children)

	assert.Equal(t, 2, a.PushTrace(1, PushAndAttachToParent, trace(2, 0xcc, 0xbb)))
	assert.Equal(t, []int{2}, a.Node(1).Children)

	assert.Equal(t, 3, a.PushTrace(0, PushOnly, trace(1, 0x01, 0xaa)))
	assert.Equal(t, []int{1}, a.Root().Children)
	assert.Len(t, a.Root().Ordering, 1)
	parent, ok := a.Node(3).HasParent()
	require.True(t, ok)
	assert.Equal(t, 0, parent)
}

func TestPushTraceDescendsThroughLastChild(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb1, 0xaa))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb2, 0xaa))

	// starting from root, depth 2 must land under the most recent depth-1 call
	id := a.PushTrace(0, PushAndAttachToParent, trace(2, 0xcc, 0xb2))
	assert.Equal(t, 3, id)
	assert.Equal(t, 2, *a.Node(id).Parent)
	assert.Empty(t, a.Node(1).Children)
	assert.Equal(t, []int{3}, a.Node(2).Children)

	id = a.PushTrace(0, PushAndAttachToParent, trace(3, 0xdd, 0xcc))
	assert.Equal(t, 3, *a.Node(id).Parent)
}

func TestPushTraceDisconnected(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		de, ok := r.(*DisconnectedTraceError)
		require.True(t, ok, "unexpected panic value %v", r)
		assert.ErrorIs(t, de, ErrDisconnectedTrace)
		assert.Equal(t, 2, de.Depth)
		assert.Equal(t, 0, de.At)
	}()
	a.PushTrace(0, PushAndAttachToParent, trace(2, 0xcc, 0xaa))
	t.Fatal("expected panic")
}

func TestPushTraceStoreOnlyNodeIsNotDescended(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushOnly, trace(1, 0x02, 0xaa))

	var err error
	func() {
		defer Recover(&err)
		a.PushTrace(0, PushAndAttachToParent, trace(2, 0xcc, 0x02))
	}()
	assert.ErrorIs(t, err, ErrDisconnectedTrace)
}

func TestRecoverRepanicsOtherValues(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		var err error
		defer Recover(&err)
		panic("boom")
	})
}

func TestSelfIndexAndParentDepthInvariants(t *testing.T) {
	depths := []int{0, 1, 2, 3, 2, 1, 2, 2, 3, 4, 1}
	a := NewCallTraceArena()
	for i, d := range depths {
		kind := PushAndAttachToParent
		if i%4 == 3 {
			kind = PushOnly
		}
		a.PushTrace(0, kind, trace(d, byte(i), byte(i+1)))
	}

	nodes := a.Nodes()
	for i := range nodes {
		n := &nodes[i]
		assert.Equal(t, i, n.Idx)
		if i == 0 {
			assert.Nil(t, n.Parent)
			continue
		}
		require.NotNil(t, n.Parent)
		assert.Equal(t, n.Trace.Depth-1, nodes[*n.Parent].Trace.Depth)
	}

	// every attached node is reachable from the root through children
	reached := map[int]bool{0: true}
	stack := []int{0}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range nodes[cur].Children {
			reached[c] = true
			stack = append(stack, c)
		}
	}
	for i := range nodes {
		if reached[i] {
			continue
		}
		p := nodes[*nodes[i].Parent]
		assert.NotContains(t, p.Children, i)
		assert.Empty(t, nodes[i].Children, "store-only node %d has children", i)
	}
}

func TestChildrenMatchCallOrdering(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb1, 0xaa))
	a.Root().AddLog(CallLog{Address: common.BytesToAddress([]byte{0xaa})})
	a.PushTrace(0, PushOnly, trace(1, 0x01, 0xaa))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb2, 0xaa))

	root := a.Root()
	assert.Equal(t, []TraceMemberOrder{
		{Kind: OrderCall, Index: 0},
		{Kind: OrderLog, Index: 0},
		{Kind: OrderCall, Index: 1},
	}, root.Ordering)

	var calls []int
	for _, o := range root.Ordering {
		if o.Kind == OrderCall {
			calls = append(calls, root.Children[o.Index])
		}
	}
	assert.Equal(t, root.Children, calls)
	assert.Equal(t, []int{1, 3}, root.Children)
}

func TestClearMatchesFreshArena(t *testing.T) {
	build := func(a *CallTraceArena) {
		a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
		a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb1, 0xaa))
		a.PushTrace(1, PushAndAttachToParent, trace(2, 0xc1, 0xb1))
		a.PushTrace(0, PushOnly, trace(1, 0x03, 0xaa))
	}

	reused := NewCallTraceArena()
	build(reused)
	for i := 0; i < 10; i++ {
		reused.PushTrace(0, PushAndAttachToParent, trace(1, byte(i), 0xaa))
	}
	capBefore := cap(reused.nodes)
	reused.Clear()
	assert.Equal(t, 1, reused.Len())
	assert.Equal(t, capBefore, cap(reused.nodes))
	for i, n := range reused.nodes[1:cap(reused.nodes)] {
		assert.Zero(t, n, "spare slot %d", i+1)
	}
	build(reused)

	fresh := NewCallTraceArena()
	build(fresh)
	assert.Equal(t, fresh.Nodes(), reused.Nodes())
}

func TestDepthZeroOverwritesRoot(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xb1, 0xaa))
	id := a.PushTrace(1, PushAndAttachToParent, trace(0, 0xee, 0x02))

	assert.Equal(t, 0, id)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, common.BytesToAddress([]byte{0xee}), a.Root().Trace.Address)
	assert.Equal(t, []int{1}, a.Root().Children)
}

func TestTraceAddresses(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xbb, 0xaa))
	a.PushTrace(0, PushOnly, trace(1, 0x02, 0xaa))

	addr := func(b byte) common.Address { return common.BytesToAddress([]byte{b}) }
	want := []common.Address{addr(0xaa), addr(0x01), addr(0xbb), addr(0xaa), addr(0x02), addr(0xaa)}

	got := slices.Collect(a.TraceAddresses())
	assert.Len(t, got, 2*a.Len())
	assert.Equal(t, want, got)
	// restartable
	assert.Equal(t, want, slices.Collect(a.TraceAddresses()))

	var first []common.Address
	for x := range a.TraceAddresses() {
		first = append(first, x)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, want[:3], first)
}

func TestIntoNodesResetsArena(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xbb, 0xaa))

	nodes := a.IntoNodes()
	assert.Len(t, nodes, 2)
	assert.Equal(t, 1, a.Len())
	assert.Empty(t, a.Root().Children)
	assert.Equal(t, []int{1}, nodes[0].Children)
}

func TestNodesMutEnrichment(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	id := a.PushTrace(0, PushAndAttachToParent, trace(1, 0xbb, 0xaa))

	nodes := a.NodesMut()
	(*nodes)[id].Trace.GasUsed = 21000
	(*nodes)[id].Trace.Success = true
	assert.EqualValues(t, 21000, a.Node(id).Trace.GasUsed)
	assert.True(t, a.Node(id).Trace.Success)
}

func TestJSONDump(t *testing.T) {
	a := NewCallTraceArena()
	a.PushTrace(0, PushAndAttachToParent, trace(0, 0xaa, 0x01))
	a.PushTrace(0, PushAndAttachToParent, trace(1, 0xbb, 0xaa))
	a.Root().AddLog(CallLog{Address: common.BytesToAddress([]byte{0xaa}), Topics: []common.Hash{{0x01}}})
	a.PushTrace(0, PushOnly, trace(1, 0x02, 0xaa))

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var dump struct {
		Nodes []struct {
			Idx      int               `json:"idx"`
			Parent   *int              `json:"parent"`
			Children []int             `json:"children"`
			Ordering []json.RawMessage `json:"ordering"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(data, &dump))
	require.Len(t, dump.Nodes, 3)
	assert.Nil(t, dump.Nodes[0].Parent)
	assert.Equal(t, []int{1}, dump.Nodes[0].Children)
	require.Len(t, dump.Nodes[0].Ordering, 2)
	assert.JSONEq(t, `{"call":0}`, string(dump.Nodes[0].Ordering[0]))
	assert.JSONEq(t, `{"log":0}`, string(dump.Nodes[0].Ordering[1]))
	assert.Equal(t, 0, *dump.Nodes[2].Parent)

	restored := new(CallTraceArena)
	require.NoError(t, json.Unmarshal(data, restored))
	again, err := json.Marshal(restored)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestJSONRejectsInconsistentDump(t *testing.T) {
	cases := map[string]string{
		"empty":          `{"nodes":[]}`,
		"idx mismatch":   `{"nodes":[{"idx":0,"parent":null,"trace":{}},{"idx":5,"parent":0,"trace":{}}]}`,
		"missing parent": `{"nodes":[{"idx":0,"parent":null,"trace":{}},{"idx":1,"parent":null,"trace":{}}]}`,
		"child range":    `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[4]}]}`,
		"ordering range": `{"nodes":[{"idx":0,"parent":null,"trace":{},"ordering":[{"log":0}]}]}`,
		"ordering tag":   `{"nodes":[{"idx":0,"parent":null,"trace":{},"ordering":[{}]}]}`,
		"self child": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1],"ordering":[{"call":0}]},` +
			`{"idx":1,"parent":0,"trace":{"depth":1},"children":[1],"ordering":[{"call":0}]}]}`,
		"foreign child": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1,2],"ordering":[{"call":0},{"call":1}]},` +
			`{"idx":1,"parent":0,"trace":{"depth":1}},{"idx":2,"parent":1,"trace":{"depth":2}}]}`,
		"forward parent": `{"nodes":[{"idx":0,"parent":null,"trace":{}},{"idx":1,"parent":2,"trace":{"depth":1}},` +
			`{"idx":2,"parent":0,"trace":{"depth":1}}]}`,
		"depth gap": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1],"ordering":[{"call":0}]},` +
			`{"idx":1,"parent":0,"trace":{"depth":5}}]}`,
		"duplicate child": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1,1],"ordering":[{"call":0},{"call":1}]},` +
			`{"idx":1,"parent":0,"trace":{"depth":1}}]}`,
		"call not ordered": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1]},` +
			`{"idx":1,"parent":0,"trace":{"depth":1}}]}`,
		"ordering swapped": `{"nodes":[{"idx":0,"parent":null,"trace":{},"children":[1,2],"ordering":[{"call":1},{"call":0}]},` +
			`{"idx":1,"parent":0,"trace":{"depth":1}},{"idx":2,"parent":0,"trace":{"depth":1}}]}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var a CallTraceArena
			assert.Error(t, json.Unmarshal([]byte(in), &a))
		})
	}
}
