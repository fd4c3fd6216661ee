package worker

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DQYXACML/calltrace/tracing/arena"
)

var (
	eoa      = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	contract = common.HexToAddress("0x0000000000000000000000000000000000001111")
	token    = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func sampleArena() *arena.CallTraceArena {
	a := arena.NewCallTraceArena()
	a.PushTrace(0, arena.PushAndAttachToParent, arena.CallTrace{Depth: 0, Address: contract, Caller: eoa})
	a.PushTrace(0, arena.PushAndAttachToParent, arena.CallTrace{Depth: 1, Address: token, Caller: contract})
	a.PushTrace(1, arena.PushAndAttachToParent, arena.CallTrace{Depth: 2, Address: contract, Caller: token})
	return a
}

func TestNewCallTraceRecord(t *testing.T) {
	a := sampleArena()
	hash := common.HexToHash("0x01")

	record, err := NewCallTraceRecord(hash, big.NewInt(9), true, a)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.GUID)
	assert.Equal(t, hash, record.TxHash)
	assert.EqualValues(t, 3, record.NodeCount)
	assert.True(t, record.Success)
	assert.NotZero(t, record.Timestamp)
	assert.Equal(t, "call_traces", record.TableName())

	restored, err := record.Arena()
	require.NoError(t, err)
	assert.Equal(t, a.Len(), restored.Len())
	assert.Equal(t, []int{2}, restored.Node(1).Children)
	assert.Equal(t, 1, *restored.Node(2).Parent)
}

func TestCallTraceRecordBadDump(t *testing.T) {
	record := &CallTraceRecord{Dump: `{"nodes":[]}`}
	_, err := record.Arena()
	assert.Error(t, err)
}

func TestTraceAddressesFromArena(t *testing.T) {
	guid := uuid.New()
	rows := TraceAddressesFromArena(guid, sampleArena())

	require.Len(t, rows, 3)
	want := map[common.Address]uint64{contract: 3, eoa: 1, token: 2}
	order := []common.Address{contract, eoa, token}
	var total uint64
	for i, row := range rows {
		assert.Equal(t, guid, row.TraceGUID)
		assert.Equal(t, order[i], row.Address)
		assert.Equal(t, want[row.Address], row.Occurrences)
		total += row.Occurrences
	}
	assert.EqualValues(t, 2*3, total)
}
