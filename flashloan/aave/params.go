package aave

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/utils"
)

// callbackParams is abi.encode(address origin, address receiver, bytes data)
var callbackParams = abi.Arguments{
	{Name: "origin", Type: utils.MustABIType("address")},
	{Name: "receiver", Type: utils.MustABIType("address")},
	{Name: "data", Type: utils.MustABIType("bytes")},
}

// EncodeParams packs the context the adapter needs back in ExecuteOperation
func EncodeParams(origin, receiver common.Address, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	packed, err := callbackParams.Pack(origin, receiver, data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack callback params: %w", err)
	}
	return packed, nil
}

// DecodeParams reverses EncodeParams
func DecodeParams(params []byte) (origin, receiver common.Address, data []byte, err error) {
	values, err := callbackParams.Unpack(params)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: %v", flashloan.ErrMalformedParams, err)
	}
	if len(values) != 3 {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: got %d values", flashloan.ErrMalformedParams, len(values))
	}

	var ok bool
	if origin, ok = values[0].(common.Address); !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: origin", flashloan.ErrMalformedParams)
	}
	if receiver, ok = values[1].(common.Address); !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: receiver", flashloan.ErrMalformedParams)
	}
	if data, ok = values[2].([]byte); !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: data", flashloan.ErrMalformedParams)
	}
	return origin, receiver, data, nil
}
