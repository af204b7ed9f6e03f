package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// EventsABI covers every event emitted by the market's contracts
const EventsABI = `[
	{"anonymous":false,"name":"Transfer","type":"event","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]},
	{"anonymous":false,"name":"Approval","type":"event","inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":true,"name":"spender","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]},
	{"anonymous":false,"name":"FlashLoan","type":"event","inputs":[
		{"indexed":true,"name":"target","type":"address"},
		{"indexed":true,"name":"initiator","type":"address"},
		{"indexed":true,"name":"asset","type":"address"},
		{"indexed":false,"name":"amount","type":"uint256"},
		{"indexed":false,"name":"premium","type":"uint256"},
		{"indexed":false,"name":"referralCode","type":"uint16"}]},
	{"anonymous":false,"name":"FlashLoan","type":"event","inputs":[
		{"indexed":true,"name":"recipient","type":"address"},
		{"indexed":true,"name":"token","type":"address"},
		{"indexed":false,"name":"amount","type":"uint256"},
		{"indexed":false,"name":"feeAmount","type":"uint256"}]},
	{"anonymous":false,"name":"LendingPoolUpdated","type":"event","inputs":[
		{"indexed":true,"name":"newAddress","type":"address"}]}
]`

// DecodedLog is a log matched against EventsABI
type DecodedLog struct {
	Event   string
	Address common.Address
	// Names lists Args keys in declaration order
	Names []string
	Args  map[string]interface{}
}

func (d *DecodedLog) String() string {
	parts := make([]string, 0, len(d.Names))
	for _, name := range d.Names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, d.Args[name]))
	}
	return fmt.Sprintf("%s(%s)", d.Event, strings.Join(parts, ", "))
}

// LogDecoder handles decoding of receipt logs
type LogDecoder struct {
	events abi.ABI
	logger *zap.Logger
}

// NewLogDecoder creates a new log decoder
func NewLogDecoder(logger *zap.Logger) (*LogDecoder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	events, err := abi.JSON(strings.NewReader(EventsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse events ABI: %w", err)
	}

	return &LogDecoder{
		events: events,
		logger: logger,
	}, nil
}

// Decode matches l by its first topic and unpacks indexed and data fields
func (d *LogDecoder) Decode(l *types.Log) (*DecodedLog, error) {
	if l == nil || len(l.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	event, err := d.events.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	args := make(map[string]interface{})
	if err := event.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s data: %w", event.RawName, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode %s topics: %w", event.RawName, err)
	}

	names := make([]string, len(event.Inputs))
	for i, input := range event.Inputs {
		names[i] = input.Name
	}

	d.logger.Debug("Decoded log",
		zap.String("event", event.RawName),
		zap.String("address", l.Address.Hex()))

	return &DecodedLog{
		Event:   event.RawName,
		Address: l.Address,
		Names:   names,
		Args:    args,
	}, nil
}
