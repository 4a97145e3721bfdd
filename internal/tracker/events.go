package tracker

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Cross-chain progress is proven by these events. Signatures are fixed by
// the deployed contracts; changing them breaks tracking.
const trackerEventsABI = `[
	{
		"name": "MessageReceived",
		"type": "event",
		"inputs": [
			{"name": "messageID", "type": "bytes32", "indexed": true},
			{"name": "sourceBlockchainID", "type": "bytes32", "indexed": true},
			{"name": "deliverer", "type": "address", "indexed": false}
		]
	},
	{
		"name": "Routed",
		"type": "event",
		"inputs": [
			{"name": "messageID", "type": "bytes32", "indexed": true},
			{"name": "destinationCell", "type": "address", "indexed": false},
			{"name": "token", "type": "address", "indexed": false},
			{"name": "amountOut", "type": "uint256", "indexed": false},
			{"name": "action", "type": "uint8", "indexed": false},
			{"name": "nextMessageID", "type": "bytes32", "indexed": false}
		]
	},
	{
		"name": "Rollback",
		"type": "event",
		"inputs": [
			{"name": "messageID", "type": "bytes32", "indexed": true},
			{"name": "token", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"name": "Withdrawn",
		"type": "event",
		"inputs": [
			{"name": "recipient", "type": "address", "indexed": true},
			{"name": "token", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	}
]`

var trackerEvents = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(trackerEventsABI))
	if err != nil {
		panic(fmt.Sprintf("tracker events abi: %v", err))
	}
	return parsed
}()

var (
	evMessageReceived = trackerEvents.Events["MessageReceived"]
	evRouted          = trackerEvents.Events["Routed"]
	evRollback        = trackerEvents.Events["Rollback"]
	evWithdrawn       = trackerEvents.Events["Withdrawn"]
)

// routedEvent is the decoded cell routed event: the next step the protocol
// committed to on-chain, cross-validated against what was quoted.
type routedEvent struct {
	MessageID       common.Hash
	DestinationCell common.Address
	Token           common.Address
	AmountOut       *big.Int
	Action          uint8
	NextMessageID   common.Hash
}

func decodeRouted(l *types.Log) (*routedEvent, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("routed event missing topics")
	}
	vals, err := evRouted.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode routed event: %w", err)
	}
	return &routedEvent{
		MessageID:       l.Topics[1],
		DestinationCell: vals[0].(common.Address),
		Token:           vals[1].(common.Address),
		AmountOut:       vals[2].(*big.Int),
		Action:          vals[3].(uint8),
		NextMessageID:   common.Hash(vals[4].([32]byte)),
	}, nil
}

// findReceiptLog returns the first receipt log matching the event id and,
// when msgID is non-zero, its message id topic.
func findReceiptLog(logs []*types.Log, eventID common.Hash, msgID common.Hash) *types.Log {
	for _, l := range logs {
		if len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		if msgID != (common.Hash{}) && (len(l.Topics) < 2 || l.Topics[1] != msgID) {
			continue
		}
		return l
	}
	return nil
}
