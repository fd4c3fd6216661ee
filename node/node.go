package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

const (
	defaultDialTimeout = 5 * time.Second

	DefaultRequestTimeout = 100 * time.Second
)

type myClient struct {
	rpc            RPC
	requestTimeout time.Duration
}

// TraceCallFrames runs debug_traceTransaction with the built-in callTracer.
func (m *myClient) TraceCallFrames(ctx context.Context, hash common.Hash, withLog bool) (*CallFrame, error) {
	ctxwt, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	cfg := map[string]any{
		"tracer":       "callTracer",
		"tracerConfig": map[string]any{"withLog": withLog},
	}
	var root *CallFrame
	if err := m.rpc.CallContext(ctxwt, &root, "debug_traceTransaction", hash, cfg); err != nil {
		return nil, errors.Wrapf(err, "trace call frames of %s", hash.Hex())
	} else if root == nil {
		return nil, ethereum.NotFound
	}
	log.Debug("traced call frames", "hash", hash.Hex(), "type", root.Type, "calls", len(root.Calls))
	return root, nil
}

func (m *myClient) TxByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	ctxwt, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	var tx *types.Transaction
	err := m.rpc.CallContext(ctxwt, &tx, "eth_getTransactionByHash", hash)
	if err != nil {
		return nil, err
	} else if tx == nil {
		return nil, ethereum.NotFound
	}
	return tx, nil
}

func (m *myClient) TxReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctxwt, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	var txReceipt *types.Receipt
	err := m.rpc.CallContext(ctxwt, &txReceipt, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	} else if txReceipt == nil {
		return nil, ethereum.NotFound
	}
	return txReceipt, nil
}

func (m *myClient) Close() {
	m.rpc.Close()
}

type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// CallFrame is a frame of the geth callTracer result
type CallFrame struct {
	Type         string          `json:"type"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Value        *hexutil.Big    `json:"value,omitempty"`
	Gas          hexutil.Uint64  `json:"gas"`
	GasUsed      hexutil.Uint64  `json:"gasUsed"`
	Input        hexutil.Bytes   `json:"input"`
	Output       hexutil.Bytes   `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	RevertReason string          `json:"revertReason,omitempty"`
	Calls        []CallFrame     `json:"calls,omitempty"`
	Logs         []CallFrameLog  `json:"logs,omitempty"`
}

// CallFrameLog is a log captured by callTracer with withLog enabled.
// Position is the number of child calls made before the log was emitted.
type CallFrameLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	Position hexutil.Uint   `json:"position"`
}

type EthClient interface {
	TxByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	TxReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TraceCallFrames(ctx context.Context, hash common.Hash, withLog bool) (*CallFrame, error)

	Close()
}

func DialEthClient(ctx context.Context, rpcUrl string, requestTimeout time.Duration) (EthClient, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial address (%s): %w", rpcUrl, err)
	}
	return NewEthClient(NewRPC(rpcClient), requestTimeout), nil
}

// NewEthClient wraps an RPC transport
func NewEthClient(r RPC, requestTimeout time.Duration) EthClient {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &myClient{rpc: r, requestTimeout: requestTimeout}
}

type rpcClient struct {
	rpc *rpc.Client
}

func NewRPC(client *rpc.Client) RPC {
	return &rpcClient{client}
}

func (c *rpcClient) Close() {
	c.rpc.Close()
}

func (c *rpcClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	err := c.rpc.CallContext(ctx, result, method, args...)
	return err
}
