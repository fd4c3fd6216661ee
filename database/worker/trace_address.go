package worker

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DQYXACML/calltrace/tracing/arena"
)

// TraceAddress is an address touched by a stored call trace, either as a
// callee or as a caller.
type TraceAddress struct {
	GUID        uuid.UUID      `gorm:"primaryKey" json:"guid"`
	TraceGUID   uuid.UUID      `gorm:"column:trace_guid" json:"trace_guid"`
	Address     common.Address `gorm:"column:address;serializer:bytes" json:"address"`
	Occurrences uint64         `gorm:"column:occurrences" json:"occurrences"`
}

func (TraceAddress) TableName() string {
	return "trace_addresses"
}

// TraceAddressesFromArena counts how often each address appears in the
// trace. Rows keep the order addresses were first seen in.
func TraceAddressesFromArena(traceGUID uuid.UUID, a *arena.CallTraceArena) []TraceAddress {
	pos := make(map[common.Address]int)
	var rows []TraceAddress
	for addr := range a.TraceAddresses() {
		if i, ok := pos[addr]; ok {
			rows[i].Occurrences++
			continue
		}
		pos[addr] = len(rows)
		rows = append(rows, TraceAddress{
			GUID:        uuid.New(),
			TraceGUID:   traceGUID,
			Address:     addr,
			Occurrences: 1,
		})
	}
	return rows
}

type TraceAddressView interface {
	QueryTraceAddresses(traceGUID uuid.UUID) ([]TraceAddress, error)
}

type TraceAddressDB interface {
	TraceAddressView

	StoreTraceAddresses([]TraceAddress) error
}

type traceAddressDB struct {
	gorm *gorm.DB
}

func (t *traceAddressDB) QueryTraceAddresses(traceGUID uuid.UUID) ([]TraceAddress, error) {
	var rows []TraceAddress
	err := t.gorm.Table("trace_addresses").
		Where("trace_guid = ?", traceGUID).
		Find(&rows).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

func (t *traceAddressDB) StoreTraceAddresses(rows []TraceAddress) error {
	if len(rows) == 0 {
		return nil
	}
	result := t.gorm.Table("trace_addresses").CreateInBatches(&rows, len(rows))
	return result.Error
}

func NewTraceAddressDB(db *gorm.DB) TraceAddressDB {
	return &traceAddressDB{
		gorm: db,
	}
}
