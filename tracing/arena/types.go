package arena

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// CallKind is the kind of a call frame
type CallKind uint8

const (
	CallKindCall CallKind = iota
	CallKindStaticCall
	CallKindCallCode
	CallKindDelegateCall
	CallKindCreate
	CallKindCreate2
	CallKindSelfDestruct
)

var callKindNames = map[CallKind]string{
	CallKindCall:         "CALL",
	CallKindStaticCall:   "STATICCALL",
	CallKindCallCode:     "CALLCODE",
	CallKindDelegateCall: "DELEGATECALL",
	CallKindCreate:       "CREATE",
	CallKindCreate2:      "CREATE2",
	CallKindSelfDestruct: "SELFDESTRUCT",
}

func (k CallKind) String() string {
	if name, ok := callKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsAnyCreate reports whether the kind is CREATE or CREATE2
func (k CallKind) IsAnyCreate() bool {
	return k == CallKindCreate || k == CallKindCreate2
}

// IsDelegate reports whether the frame runs code in the caller's context
func (k CallKind) IsDelegate() bool {
	return k == CallKindDelegateCall || k == CallKindCallCode
}

// CallKindFromOpCode maps an EVM call opcode to a CallKind.
func CallKindFromOpCode(op vm.OpCode) (CallKind, bool) {
	switch op {
	case vm.CALL:
		return CallKindCall, true
	case vm.STATICCALL:
		return CallKindStaticCall, true
	case vm.CALLCODE:
		return CallKindCallCode, true
	case vm.DELEGATECALL:
		return CallKindDelegateCall, true
	case vm.CREATE:
		return CallKindCreate, true
	case vm.CREATE2:
		return CallKindCreate2, true
	case vm.SELFDESTRUCT:
		return CallKindSelfDestruct, true
	}
	return 0, false
}

// ParseCallKind maps the callTracer "type" string to a CallKind.
func ParseCallKind(s string) (CallKind, bool) {
	for k, name := range callKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// CallTrace is the record of a single call frame.
//
// Depth, Address and Caller place the node in the arena. Everything else is
// filled in by the producer, usually after the node was pushed.
type CallTrace struct {
	Depth   int            `json:"depth"`
	Address common.Address `json:"address"`
	Caller  common.Address `json:"caller"`

	Kind            CallKind       `json:"kind"`
	Value           *hexutil.Big   `json:"value,omitempty"`
	Data            hexutil.Bytes  `json:"data,omitempty"`
	Output          hexutil.Bytes  `json:"output,omitempty"`
	GasLimit        hexutil.Uint64 `json:"gasLimit"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
	Success         bool           `json:"success"`
	Status          string         `json:"status,omitempty"`
	MaybePrecompile bool           `json:"maybePrecompile,omitempty"`
}

// ValueBig returns the transferred value, zero when unset
func (t *CallTrace) ValueBig() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value.ToInt()
}

// Selector returns the first four bytes of the call data, if any
func (t *CallTrace) Selector() (sel [4]byte, ok bool) {
	if len(t.Data) < 4 || t.Kind.IsAnyCreate() {
		return sel, false
	}
	copy(sel[:], t.Data[:4])
	return sel, true
}

// CallLog is a log emitted inside a call frame
type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// OrderKind tags an entry of a node's ordering
type OrderKind uint8

const (
	OrderCall OrderKind = iota
	OrderLog
)

func (k OrderKind) String() string {
	switch k {
	case OrderCall:
		return "call"
	case OrderLog:
		return "log"
	}
	return "unknown"
}

// TraceMemberOrder is one entry of a frame's ordering. Index points into
// Children for OrderCall and into Logs for OrderLog.
type TraceMemberOrder struct {
	Kind  OrderKind
	Index int
}

// CallTraceNode is a node of the arena.
type CallTraceNode struct {
	Idx      int
	Parent   *int
	Trace    CallTrace
	Children []int
	Ordering []TraceMemberOrder
	Logs     []CallLog
}

// IsRoot reports whether the node is the entry frame
func (n *CallTraceNode) IsRoot() bool {
	return n.Parent == nil
}

// HasParent returns the parent index and whether there is one
func (n *CallTraceNode) HasParent() (int, bool) {
	if n.Parent == nil {
		return 0, false
	}
	return *n.Parent, true
}

// IsPrecompile reports whether the call targeted a precompile
func (n *CallTraceNode) IsPrecompile() bool {
	return n.Trace.MaybePrecompile
}

// Kind returns the call kind of the node
func (n *CallTraceNode) Kind() CallKind {
	return n.Trace.Kind
}

// ExecutionAddress is the address whose storage the frame touches.
func (n *CallTraceNode) ExecutionAddress() common.Address {
	if n.Trace.Kind.IsDelegate() {
		return n.Trace.Caller
	}
	return n.Trace.Address
}

// AddLog records a log in the frame and places it after everything already
// in the ordering.
func (n *CallTraceNode) AddLog(l CallLog) {
	n.Ordering = append(n.Ordering, TraceMemberOrder{Kind: OrderLog, Index: len(n.Logs)})
	n.Logs = append(n.Logs, l)
}
