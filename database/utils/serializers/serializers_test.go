package serializers

import (
	"context"
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

type row struct {
	Hash    common.Hash     `gorm:"serializer:bytes"`
	Address *common.Address `gorm:"serializer:bytes"`
	Raw     []byte          `gorm:"serializer:bytes"`
	Number  *big.Int        `gorm:"serializer:u256"`
}

func parseRow(t *testing.T) *schema.Schema {
	s, err := schema.Parse(&row{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	return s
}

func TestBytesSerializer(t *testing.T) {
	ctx := context.Background()
	s := parseRow(t)
	var r row
	dst := reflect.ValueOf(&r).Elem()

	hash := common.HexToHash("0xabcdef")
	v, err := BytesSerializer{}.Value(ctx, s.LookUpField("Hash"), dst, hash)
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), v)

	require.NoError(t, BytesSerializer{}.Scan(ctx, s.LookUpField("Hash"), dst, hash.Hex()))
	assert.Equal(t, hash, r.Hash)

	addr := common.HexToAddress("0x1234")
	require.NoError(t, BytesSerializer{}.Scan(ctx, s.LookUpField("Address"), dst, []byte(addr.Hex())))
	require.NotNil(t, r.Address)
	assert.Equal(t, addr, *r.Address)

	require.NoError(t, BytesSerializer{}.Scan(ctx, s.LookUpField("Raw"), dst, "0x0102"))
	assert.Equal(t, []byte{1, 2}, r.Raw)

	v, err = BytesSerializer{}.Value(ctx, s.LookUpField("Address"), dst, (*common.Address)(nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, BytesSerializer{}.Scan(ctx, s.LookUpField("Hash"), dst, "zz"))
}

func TestU256Serializer(t *testing.T) {
	ctx := context.Background()
	s := parseRow(t)
	field := s.LookUpField("Number")
	var r row
	dst := reflect.ValueOf(&r).Elem()

	v, err := U256Serializer{}.Value(ctx, field, dst, big.NewInt(12345))
	require.NoError(t, err)
	assert.Equal(t, "12345", v)

	_, err = U256Serializer{}.Value(ctx, field, dst, big.NewInt(-1))
	assert.Error(t, err)
	_, err = U256Serializer{}.Value(ctx, field, dst, new(big.Int).Set(u256BigIntOverflow))
	assert.Error(t, err)

	require.NoError(t, U256Serializer{}.Scan(ctx, field, dst, "987654321"))
	assert.EqualValues(t, 987654321, r.Number.Int64())

	assert.Error(t, U256Serializer{}.Scan(ctx, field, dst, "not-a-number"))
	assert.Error(t, U256Serializer{}.Scan(ctx, s.LookUpField("Hash"), dst, "1"))
}
