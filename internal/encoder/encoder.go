// Package encoder serializes a confirmed quote into the instruction payload
// the entry-point cell contract expects. Encodings are fixed by the on-chain
// ABI; any change here breaks on-chain compatibility.
package encoder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/quote"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
)

// Encoder errors.
var (
	ErrUnencodable = errors.New("quote cannot be encoded")
)

// SourceTag identifies this frontend in on-chain instructions.
const SourceTag = "chainhop"

// Action is the on-chain action code, derived 1:1 from the hop type.
type Action uint8

const (
	ActionHop Action = iota
	ActionHopAndCall
	ActionSwapAndHop
	ActionSwapAndTransfer
)

// ActionFor maps a hop type to its action code.
func ActionFor(t route.HopType) (Action, error) {
	switch t {
	case route.HopBridge:
		return ActionHop, nil
	case route.HopAndCall:
		return ActionHopAndCall, nil
	case route.SwapAndHop:
		return ActionSwapAndHop, nil
	case route.SwapAndTransfer:
		return ActionSwapAndTransfer, nil
	}
	return 0, fmt.Errorf("%w: unknown hop type %q", ErrUnencodable, t)
}

// Base gas limits per action, added to the quoted swap gas.
const (
	gasBaseHop             = 450_000
	gasBaseHopAndCall      = 900_000
	gasBaseSwapAndHop      = 650_000
	gasBaseSwapAndTransfer = 500_000
	gasRecipientCall       = 450_000
)

func baseGas(a Action) uint64 {
	switch a {
	case ActionHop:
		return gasBaseHop
	case ActionHopAndCall:
		return gasBaseHopAndCall
	case ActionSwapAndHop:
		return gasBaseSwapAndHop
	case ActionSwapAndTransfer:
		return gasBaseSwapAndTransfer
	}
	return gasBaseHop
}

// BridgePath names the bridge contracts and fees of one cross-chain hop.
type BridgePath struct {
	BridgeSource            common.Address
	SourceBridgeIsNative    bool
	BridgeDestination       common.Address
	CellDestination         common.Address
	DestinationBlockchainID [32]byte
	TeleporterFee           *big.Int
	SecondaryTeleporterFee  *big.Int
}

// Hop is one encoded instruction step.
type Hop struct {
	Action            uint8
	RequiredGasLimit  *big.Int
	RecipientGasLimit *big.Int
	Trade             []byte
	BridgePath        BridgePath
}

// Instructions is the top-level payload passed to the entry-point cell.
type Instructions struct {
	SourceID              string
	Receiver              common.Address
	PayableReceiver       bool
	RollbackTeleporterFee *big.Int
	RollbackGasLimit      *big.Int
	Hops                  []Hop
}

// FeeConfig carries the bridge messaging fees attached to instructions.
type FeeConfig struct {
	TeleporterFee          *big.Int
	SecondaryTeleporterFee *big.Int
	RollbackTeleporterFee  *big.Int
	RollbackGasLimit       *big.Int
}

func (f FeeConfig) withDefaults() FeeConfig {
	if f.TeleporterFee == nil {
		f.TeleporterFee = new(big.Int)
	}
	if f.SecondaryTeleporterFee == nil {
		f.SecondaryTeleporterFee = new(big.Int)
	}
	if f.RollbackTeleporterFee == nil {
		f.RollbackTeleporterFee = new(big.Int)
	}
	if f.RollbackGasLimit == nil {
		f.RollbackGasLimit = big.NewInt(gasBaseHop)
	}
	return f
}

// Submission is everything the wallet collaborator needs to send the swap:
// the entry-point cell call with the encoded instructions attached. Value is
// the native currency attached to the call: the input amount when the source
// token is native, plus the teleporter fee when that fee is itself
// native-denominated. FeeToken names the denomination of the first hop's
// teleporter fee; zero for same-chain swaps.
type Submission struct {
	ChainID      registry.ChainID
	Cell         common.Address
	Token        common.Address
	Amount       *big.Int
	Value        *big.Int
	FeeToken     common.Address
	Instructions *Instructions
	Encoded      []byte
}

var bridgePathComponents = []abi.ArgumentMarshaling{
	{Name: "bridgeSource", Type: "address"},
	{Name: "sourceBridgeIsNative", Type: "bool"},
	{Name: "bridgeDestination", Type: "address"},
	{Name: "cellDestination", Type: "address"},
	{Name: "destinationBlockchainID", Type: "bytes32"},
	{Name: "teleporterFee", Type: "uint256"},
	{Name: "secondaryTeleporterFee", Type: "uint256"},
}

var instructionsType = func() abi.Type {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "sourceID", Type: "string"},
		{Name: "receiver", Type: "address"},
		{Name: "payableReceiver", Type: "bool"},
		{Name: "rollbackTeleporterFee", Type: "uint256"},
		{Name: "rollbackGasLimit", Type: "uint256"},
		{Name: "hops", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "action", Type: "uint8"},
			{Name: "requiredGasLimit", Type: "uint256"},
			{Name: "recipientGasLimit", Type: "uint256"},
			{Name: "trade", Type: "bytes"},
			{Name: "bridgePath", Type: "tuple", Components: bridgePathComponents},
		}},
	})
	if err != nil {
		panic(fmt.Sprintf("instructions abi: %v", err))
	}
	return t
}()

var instructionsArgs = abi.Arguments{{Name: "instructions", Type: instructionsType}}

// Encoder builds cell instruction payloads from confirmed quotes.
type Encoder struct {
	reg *registry.Registry
}

// New creates an encoder over the registry.
func New(reg *registry.Registry) *Encoder {
	return &Encoder{reg: reg}
}

// Build encodes a confirmed quote into a submission for the wallet layer.
// The receiver defaults to the sender when the quote carries no recipient
// override.
func (e *Encoder) Build(q *quote.Quote, sender common.Address, fees FeeConfig) (*Submission, error) {
	if !q.Confirmed {
		return nil, fmt.Errorf("%w: %v", quote.ErrNotConfirmed, q.Err)
	}
	if len(q.Hops) == 0 {
		return nil, fmt.Errorf("%w: no hops", ErrUnencodable)
	}
	fees = fees.withDefaults()

	receiver := q.Recipient
	if receiver == (common.Address{}) {
		receiver = sender
	}

	instr := &Instructions{
		SourceID:              SourceTag,
		Receiver:              receiver,
		PayableReceiver:       q.Path.DstToken.IsNative,
		RollbackTeleporterFee: fees.RollbackTeleporterFee,
		RollbackGasLimit:      fees.RollbackGasLimit,
	}

	for _, hq := range q.Hops {
		hop, err := e.encodeHop(hq, fees)
		if err != nil {
			return nil, err
		}
		instr.Hops = append(instr.Hops, hop)
	}

	encoded, err := instructionsArgs.Pack(*instr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}

	first := q.Hops[0]
	value := new(big.Int)
	if q.Path.SrcToken.IsNative {
		value.Add(value, q.Path.SrcAmount)
	}
	var feeToken common.Address
	if first.Type.CrossChain() {
		ft := FeeToken(first.Hop)
		feeToken = ft.Address
		if ft.IsNative {
			value.Add(value, fees.TeleporterFee)
		}
	}

	return &Submission{
		ChainID:      q.Path.SrcChain,
		Cell:         first.Cell.Address,
		Token:        q.Path.SrcToken.Address,
		Amount:       q.Path.SrcAmount,
		Value:        value,
		FeeToken:     feeToken,
		Instructions: instr,
		Encoded:      encoded,
	}, nil
}

func (e *Encoder) encodeHop(hq *quote.HopQuote, fees FeeConfig) (Hop, error) {
	action, err := ActionFor(hq.Type)
	if err != nil {
		return Hop{}, err
	}

	hop := Hop{
		Action:            uint8(action),
		RequiredGasLimit:  new(big.Int).SetUint64(baseGas(action) + hq.EstGasUnits),
		RecipientGasLimit: new(big.Int),
		Trade:             hq.EncodedTrade,
		BridgePath: BridgePath{
			TeleporterFee:          new(big.Int),
			SecondaryTeleporterFee: new(big.Int),
		},
	}
	if hop.Trade == nil {
		hop.Trade = []byte{}
	}
	if action == ActionHopAndCall {
		hop.RecipientGasLimit = big.NewInt(gasRecipientCall)
	}

	if !hq.Type.CrossChain() {
		return hop, nil
	}
	if hq.Edge == nil {
		return Hop{}, fmt.Errorf("%w: cross-chain hop missing bridge edge", ErrUnencodable)
	}

	dstChain, err := e.reg.Chain(hq.DstChain)
	if err != nil {
		return Hop{}, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}

	hop.BridgePath = BridgePath{
		BridgeSource:            hq.Edge.SrcBridge.Address,
		SourceBridgeIsNative:    hq.Edge.SrcBridge.IsNative(),
		BridgeDestination:       hq.Edge.DstBridge.Address,
		CellDestination:         hq.DstCell.Address,
		DestinationBlockchainID: dstChain.BlockchainID,
		TeleporterFee:           fees.TeleporterFee,
		SecondaryTeleporterFee:  fees.SecondaryTeleporterFee,
	}
	return hop, nil
}

// FeeToken returns the token a cross-chain hop's primary fee is denominated
// in: the hop's input token when no swap precedes the bridge, otherwise the
// swap's output, the bridge token itself.
func FeeToken(h route.Hop) *registry.Token {
	if h.Type == route.SwapAndHop {
		return h.Edge.SrcToken
	}
	return h.SrcToken
}
