package serializers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm/schema"
)

type BytesSerializer struct{}

type BytesInterface interface{ Bytes() []byte }
type SetBytesInterface interface{ SetBytes([]byte) }

func init() {
	schema.RegisterSerializer("bytes", BytesSerializer{})
}

// Scan decodes a 0x-prefixed hex column into any type with SetBytes
func (BytesSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return nil
	}

	var hexStr string
	switch v := dbValue.(type) {
	case string:
		hexStr = v
	case []byte:
		hexStr = string(v)
	default:
		return fmt.Errorf("expected string or []byte for bytes column, got %T", dbValue)
	}

	b, err := hexutil.Decode(hexStr)
	if err != nil {
		return fmt.Errorf("failed to decode database value %q: %w", hexStr, err)
	}

	if field.FieldType == reflect.TypeOf([]byte(nil)) {
		field.ReflectValueOf(ctx, dst).SetBytes(b)
		return nil
	}

	fieldValue := reflect.New(field.FieldType)
	fieldInterface := fieldValue.Interface()
	if field.FieldType.Kind() == reflect.Pointer {
		nestedField := fieldValue.Elem()
		nestedField.Set(reflect.New(field.FieldType.Elem()))
		fieldInterface = nestedField.Interface()
	}

	setter, ok := fieldInterface.(SetBytesInterface)
	if !ok {
		return fmt.Errorf("field %s does not implement SetBytes: %T", field.Name, fieldInterface)
	}
	setter.SetBytes(b)
	field.ReflectValueOf(ctx, dst).Set(fieldValue.Elem())
	return nil
}

// Value encodes anything with Bytes() as a lower-case 0x-prefixed hex string
func (BytesSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil || (field.FieldType.Kind() == reflect.Pointer && reflect.ValueOf(fieldValue).IsNil()) {
		return nil, nil
	}

	if b, ok := fieldValue.([]byte); ok {
		return hexutil.Encode(b), nil
	}
	getter, ok := fieldValue.(BytesInterface)
	if !ok {
		return nil, fmt.Errorf("field %s does not implement Bytes: %T", field.Name, fieldValue)
	}
	return hexutil.Encode(getter.Bytes()), nil
}
