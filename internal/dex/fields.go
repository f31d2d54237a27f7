package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// fields holds the named arguments of one decoded event.
type fields map[string]interface{}

func (f fields) address(name string) (string, error) {
	addr, err := asAddress(f[name])
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return addr.Hex(), nil
}

func (f fields) integer(name string) (string, error) {
	value, err := asBigInt(f[name])
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return value.String(), nil
}

func (f fields) tick(name string) (int32, error) {
	value, err := asBigInt(f[name])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return int24FromBig(value)
}

// integers reads several integer fields in order, stopping at the first error.
func (f fields) integers(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		value, err := f.integer(name)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
