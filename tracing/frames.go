package tracing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"

	"github.com/DQYXACML/calltrace/node"
	"github.com/DQYXACML/calltrace/tracing/arena"
)

const (
	StatusReturn = "Return"
	StatusStop   = "Stop"
	StatusRevert = "Revert"

	revertedError = "execution reverted"
)

// BuildOptions controls BuildArena
type BuildOptions struct {
	// Precompiles overrides the precompile address set. Nil means the
	// Prague set.
	Precompiles       []common.Address
	RecordPrecompiles bool
	RecordLogs        bool
}

// BuildArena replays a callTracer frame tree into a fresh arena, depth
// first, in execution order.
func BuildArena(root *node.CallFrame, opts BuildOptions) (*arena.CallTraceArena, error) {
	a := arena.NewCallTraceArena()
	if err := BuildInto(a, root, opts); err != nil {
		return nil, err
	}
	return a, nil
}

// BuildInto clears a and rebuilds it from root
func BuildInto(a *arena.CallTraceArena, root *node.CallFrame, opts BuildOptions) (err error) {
	if root == nil {
		return errors.New("nil call frame")
	}
	a.Clear()
	b := &frameBuilder{arena: a, opts: opts}
	if opts.Precompiles != nil {
		b.precompiles = addressSet(opts.Precompiles)
	} else {
		b.precompiles = addressSet(vm.PrecompiledAddressesPrague)
	}

	defer arena.Recover(&err)
	return b.push(0, root, 0)
}

type frameBuilder struct {
	arena       *arena.CallTraceArena
	opts        BuildOptions
	precompiles map[common.Address]struct{}
}

func (b *frameBuilder) push(parent int, f *node.CallFrame, depth int) error {
	trace, err := frameTrace(f, depth)
	if err != nil {
		return err
	}
	_, trace.MaybePrecompile = b.precompiles[trace.Address]

	kind := arena.PushAndAttachToParent
	if trace.MaybePrecompile && !b.opts.RecordPrecompiles {
		kind = arena.PushOnly
	}
	idx := b.arena.PushTrace(parent, kind, trace)

	logs := f.Logs
	if !b.opts.RecordLogs {
		logs = nil
	}
	next := 0
	for i := range f.Calls {
		next = b.addLogs(idx, logs, next, i)
		if err := b.push(idx, &f.Calls[i], depth+1); err != nil {
			return err
		}
	}
	b.addLogs(idx, logs, next, -1)
	return nil
}

// addLogs adds logs[next:] positioned before child call `before` (-1 for
// all remaining) and returns the first log not added.
func (b *frameBuilder) addLogs(idx int, logs []node.CallFrameLog, next, before int) int {
	for ; next < len(logs); next++ {
		l := logs[next]
		if before >= 0 && int(l.Position) > before {
			break
		}
		b.arena.Node(idx).AddLog(arena.CallLog{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return next
}

func frameTrace(f *node.CallFrame, depth int) (arena.CallTrace, error) {
	kind, ok := arena.ParseCallKind(f.Type)
	if !ok {
		return arena.CallTrace{}, errors.Errorf("unknown call frame type %q at depth %d", f.Type, depth)
	}
	trace := arena.CallTrace{
		Depth:    depth,
		Caller:   f.From,
		Kind:     kind,
		Value:    f.Value,
		Data:     f.Input,
		Output:   f.Output,
		GasLimit: f.Gas,
		GasUsed:  f.GasUsed,
		Success:  f.Error == "",
	}
	if f.To != nil {
		trace.Address = *f.To
	}
	switch {
	case f.Error == revertedError:
		trace.Status = StatusRevert
	case f.Error != "":
		trace.Status = f.Error
	case len(f.Output) == 0:
		trace.Status = StatusStop
	default:
		trace.Status = StatusReturn
	}
	return trace, nil
}
