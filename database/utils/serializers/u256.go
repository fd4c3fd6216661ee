package serializers

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/jackc/pgtype"
	"gorm.io/gorm/schema"
)

var (
	big10              = big.NewInt(10)
	u256BigIntOverflow = new(big.Int).Exp(big.NewInt(2), big.NewInt(256), nil)
	bigIntType         = reflect.TypeOf((*big.Int)(nil))
)

// U256Serializer stores *big.Int values in a NUMERIC(78) column
type U256Serializer struct{}

func init() {
	schema.RegisterSerializer("u256", U256Serializer{})
}

func (U256Serializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return nil
	} else if field.FieldType != bigIntType {
		return fmt.Errorf("can only deserialize into a *big.Int: %v", field.FieldType)
	}

	bigInt, err := scanNumeric(dbValue)
	if err != nil {
		return err
	}
	if bigInt.Sign() < 0 || bigInt.Cmp(u256BigIntOverflow) >= 0 {
		return fmt.Errorf("deserialized number out of u256 range: %s", bigInt)
	}

	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(bigInt))
	return nil
}

func scanNumeric(dbValue interface{}) (*big.Int, error) {
	switch v := dbValue.(type) {
	case string:
		if n, ok := new(big.Int).SetString(v, 10); ok {
			return n, nil
		}
		return nil, fmt.Errorf("failed to parse string as big.Int: %s", v)
	case []byte:
		if n, ok := new(big.Int).SetString(string(v), 10); ok {
			return n, nil
		}
		return nil, fmt.Errorf("failed to parse bytes as big.Int: %s", string(v))
	case int64:
		return big.NewInt(v), nil
	}

	numeric := new(pgtype.Numeric)
	if err := numeric.Scan(dbValue); err != nil {
		return nil, fmt.Errorf("failed to scan value as numeric: %w", err)
	}
	if numeric.Status != pgtype.Present || numeric.Int == nil {
		return nil, fmt.Errorf("numeric value is not present: %v", dbValue)
	}
	n := new(big.Int).Set(numeric.Int)
	if numeric.Exp > 0 {
		factor := new(big.Int).Exp(big10, big.NewInt(int64(numeric.Exp)), nil)
		n.Mul(n, factor)
	}
	return n, nil
}

func (U256Serializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil || (field.FieldType.Kind() == reflect.Pointer && reflect.ValueOf(fieldValue).IsNil()) {
		return nil, nil
	} else if field.FieldType != bigIntType {
		return nil, fmt.Errorf("can only serialize a *big.Int: %v", field.FieldType)
	}

	bigIntValue := fieldValue.(*big.Int)
	if bigIntValue.Sign() < 0 {
		return nil, fmt.Errorf("cannot serialize negative big.Int as u256: %s", bigIntValue)
	}
	if bigIntValue.Cmp(u256BigIntOverflow) >= 0 {
		return nil, fmt.Errorf("cannot serialize big.Int larger than u256: %s", bigIntValue)
	}
	return bigIntValue.String(), nil
}
