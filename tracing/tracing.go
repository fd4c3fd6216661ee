package tracing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/DQYXACML/calltrace/node"
	"github.com/DQYXACML/calltrace/tracing/arena"
)

// TxTrace is the call trace of a mined transaction
type TxTrace struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	Success     bool
	Arena       *arena.CallTraceArena
}

// Tracer rebuilds call traces of mined transactions through debug_traceTransaction
type Tracer struct {
	rpcClient node.EthClient
	opts      BuildOptions
}

// NewTracer creates a tracer on top of an RPC client
func NewTracer(client node.EthClient, opts BuildOptions) *Tracer {
	return &Tracer{
		rpcClient: client,
		opts:      opts,
	}
}

// TraceTransaction fetches the callTracer frames and the receipt of txHash
// and assembles them into a call trace arena.
func (t *Tracer) TraceTransaction(ctx context.Context, txHash common.Hash) (*TxTrace, error) {
	receipt, err := t.rpcClient.TxReceiptByHash(ctx, txHash)
	if err != nil {
		log.Error("failed to get receipt", "txHash", txHash.Hex(), "error", err)
		return nil, errors.Wrapf(err, "receipt of %s", txHash.Hex())
	}

	frame, err := t.rpcClient.TraceCallFrames(ctx, txHash, t.opts.RecordLogs)
	if err != nil {
		log.Error("failed to trace call path", "txHash", txHash.Hex(), "error", err)
		return nil, err
	}

	a, err := BuildArena(frame, t.opts)
	if err != nil {
		log.Error("failed to build call trace", "txHash", txHash.Hex(), "error", err)
		return nil, errors.Wrapf(err, "build call trace of %s", txHash.Hex())
	}
	log.Info("traced transaction", "txHash", txHash.Hex(), "nodes", a.Len(), "status", receipt.Status)

	return &TxTrace{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		Arena:       a,
	}, nil
}
