package tracing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"

	"github.com/DQYXACML/calltrace/tracing/arena"
)

// InspectorConfig controls what the inspector records
type InspectorConfig struct {
	// ChainConfig is used to resolve the active precompiles of the block.
	// Without it the Prague precompile set is assumed.
	ChainConfig *params.ChainConfig
	// RecordPrecompiles makes precompile calls visible in the call graph.
	RecordPrecompiles bool
	// RecordLogs interleaves emitted logs into the frames' ordering.
	RecordLogs bool
}

// CallTraceInspector builds a call trace arena from live EVM hooks.
type CallTraceInspector struct {
	cfg         InspectorConfig
	arena       *arena.CallTraceArena
	open        []int // indices of frames that have not exited yet
	precompiles map[common.Address]struct{}
	err         error
	txErr       error
}

// NewCallTraceInspector creates an inspector with an empty arena
func NewCallTraceInspector(cfg InspectorConfig) *CallTraceInspector {
	return &CallTraceInspector{
		cfg:         cfg,
		arena:       arena.NewCallTraceArena(),
		open:        make([]int, 0, 16),
		precompiles: addressSet(vm.PrecompiledAddressesPrague),
	}
}

// Hooks returns the tracing hooks to install in vm.Config
func (i *CallTraceInspector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnTxStart: i.OnTxStart,
		OnTxEnd:   i.OnTxEnd,
		OnEnter:   i.OnEnter,
		OnExit:    i.OnExit,
		OnLog:     i.OnLog,
	}
}

// Result returns the arena of the last traced transaction. A disconnected
// trace or a failed transaction is reported as error and the arena must
// then be discarded.
func (i *CallTraceInspector) Result() (*arena.CallTraceArena, error) {
	if i.err != nil {
		return nil, errors.Wrap(i.err, "call trace construction aborted")
	}
	if i.txErr != nil {
		return nil, errors.Wrap(i.txErr, "transaction failed")
	}
	return i.arena, nil
}

func (i *CallTraceInspector) OnTxStart(vmctx *tracing.VMContext, tx *types.Transaction, from common.Address) {
	i.arena.Clear()
	i.open = i.open[:0]
	i.err, i.txErr = nil, nil

	if i.cfg.ChainConfig != nil && vmctx != nil && vmctx.BlockNumber != nil {
		rules := i.cfg.ChainConfig.Rules(vmctx.BlockNumber, vmctx.Random != nil, vmctx.Time)
		i.precompiles = addressSet(vm.ActivePrecompiles(rules))
	}
	if tx != nil {
		log.Debug("call trace started", "tx", tx.Hash().Hex(), "from", from.Hex())
	}
}

func (i *CallTraceInspector) OnTxEnd(receipt *types.Receipt, err error) {
	i.txErr = err
	if len(i.open) != 0 && i.err == nil {
		log.Warn("call trace ended with open frames", "open", len(i.open))
	}
}

func (i *CallTraceInspector) OnEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	if i.err != nil {
		return
	}
	defer arena.Recover(&i.err)

	kind, ok := arena.CallKindFromOpCode(vm.OpCode(typ))
	if !ok {
		log.Warn("unknown call opcode", "op", vm.OpCode(typ).String(), "depth", depth)
	}
	_, precompile := i.precompiles[to]
	trace := arena.CallTrace{
		Depth:           depth,
		Address:         to,
		Caller:          from,
		Kind:            kind,
		Data:            common.CopyBytes(input),
		GasLimit:        hexutil.Uint64(gas),
		MaybePrecompile: precompile,
	}
	if value != nil {
		trace.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}

	pushKind := arena.PushAndAttachToParent
	if precompile && !i.cfg.RecordPrecompiles {
		pushKind = arena.PushOnly
	}
	entry := 0
	if len(i.open) > 0 {
		entry = i.open[len(i.open)-1]
	}
	i.open = append(i.open, i.arena.PushTrace(entry, pushKind, trace))
}

func (i *CallTraceInspector) OnExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if i.err != nil || len(i.open) == 0 {
		return
	}
	idx := i.open[len(i.open)-1]
	i.open = i.open[:len(i.open)-1]

	node := i.arena.Node(idx)
	if node.Trace.Depth != depth {
		log.Warn("call exit depth mismatch", "node", idx, "want", node.Trace.Depth, "got", depth)
	}
	node.Trace.Output = common.CopyBytes(output)
	node.Trace.GasUsed = hexutil.Uint64(gasUsed)
	node.Trace.Success = err == nil
	node.Trace.Status = callStatus(err, reverted, len(output))
}

func (i *CallTraceInspector) OnLog(l *types.Log) {
	if i.err != nil || !i.cfg.RecordLogs || len(i.open) == 0 || l == nil {
		return
	}
	i.arena.Node(i.open[len(i.open)-1]).AddLog(arena.CallLog{
		Address: l.Address,
		Topics:  append([]common.Hash(nil), l.Topics...),
		Data:    common.CopyBytes(l.Data),
	})
}

func callStatus(err error, reverted bool, outputLen int) string {
	switch {
	case reverted:
		return StatusRevert
	case err != nil:
		return err.Error()
	case outputLen == 0:
		return StatusStop
	}
	return StatusReturn
}

func addressSet(addrs []common.Address) map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}
