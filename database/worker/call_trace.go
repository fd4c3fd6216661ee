package worker

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/DQYXACML/calltrace/tracing/arena"
)

// CallTraceRecord is the persisted call trace of one transaction. Dump holds
// the structural JSON dump of the arena.
type CallTraceRecord struct {
	GUID        uuid.UUID   `gorm:"primaryKey" json:"guid"`
	TxHash      common.Hash `gorm:"column:tx_hash;serializer:bytes" db:"tx_hash" json:"tx_hash"`
	BlockNumber *big.Int    `gorm:"serializer:u256;column:block_number" db:"block_number" json:"block_number"`
	NodeCount   uint64      `gorm:"column:node_count" json:"node_count"`
	Success     bool        `gorm:"column:success" json:"success"`
	Dump        string      `gorm:"column:dump;type:jsonb" json:"dump"`
	Timestamp   uint64      `gorm:"column:timestamp" json:"timestamp"`
}

func (CallTraceRecord) TableName() string {
	return "call_traces"
}

// NewCallTraceRecord snapshots an arena into a new row
func NewCallTraceRecord(txHash common.Hash, blockNumber *big.Int, success bool, a *arena.CallTraceArena) (*CallTraceRecord, error) {
	dump, err := json.Marshal(a)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode call trace arena")
	}
	return &CallTraceRecord{
		GUID:        uuid.New(),
		TxHash:      txHash,
		BlockNumber: blockNumber,
		NodeCount:   uint64(a.Len()),
		Success:     success,
		Dump:        string(dump),
		Timestamp:   uint64(time.Now().Unix()),
	}, nil
}

// Arena decodes the stored dump
func (r *CallTraceRecord) Arena() (*arena.CallTraceArena, error) {
	a := new(arena.CallTraceArena)
	if err := json.Unmarshal([]byte(r.Dump), a); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode call trace %s", r.GUID)
	}
	return a, nil
}

type CallTraceView interface {
	QueryCallTraceByTxHash(txHash common.Hash) (*CallTraceRecord, error)
}

type CallTraceDB interface {
	CallTraceView

	StoreCallTrace(*CallTraceRecord) error
}

type callTraceDB struct {
	gorm *gorm.DB
}

func (c *callTraceDB) QueryCallTraceByTxHash(txHash common.Hash) (*CallTraceRecord, error) {
	var record CallTraceRecord
	err := c.gorm.Table("call_traces").
		Where("tx_hash = ?", strings.ToLower(txHash.Hex())).
		Order("timestamp DESC").
		Take(&record).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (c *callTraceDB) StoreCallTrace(record *CallTraceRecord) error {
	result := c.gorm.Table("call_traces").Create(record)
	return result.Error
}

func NewCallTraceDB(db *gorm.DB) CallTraceDB {
	return &callTraceDB{
		gorm: db,
	}
}
