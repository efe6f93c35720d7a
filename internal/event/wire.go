package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Wire formats use snake_case to match upstream producers. Token amounts
// travel as decimal strings since they exceed the JSON number range.

type wireOutput struct {
	Value     uint64 `json:"value"`
	Recipient string `json:"recipient"`
}

type wireContext struct {
	Block   uint64       `json:"block"`
	Sender  string       `json:"sender"`
	Origin  string       `json:"origin,omitempty"`
	Outputs []wireOutput `json:"outputs,omitempty"`
}

type wireTx struct {
	TxID    string      `json:"tx_id"`
	Op      string      `json:"op"`
	Token   string      `json:"token"`
	Context wireContext `json:"context"`

	FloorPrice         string `json:"floor_price,omitempty"`
	InitialLiquidity   string `json:"initial_liquidity,omitempty"`
	Receiver           string `json:"receiver,omitempty"`
	MaxReservesPercent uint64 `json:"max_reserves_percent,omitempty"`
	Amount             string `json:"amount,omitempty"`
	Priority           bool   `json:"priority,omitempty"`
	MaximumAmountIn    uint64 `json:"maximum_amount_in,omitempty"`
	MinimumAmountOut   string `json:"minimum_amount_out,omitempty"`
	ActivationDelay    uint8  `json:"activation_delay,omitempty"`
	ForLiquidityPool   bool   `json:"for_liquidity_pool,omitempty"`
}

// MarshalOperation encodes op in the transaction wire format.
func MarshalOperation(op Operation) ([]byte, error) {
	ctx := op.Context()
	w := wireTx{
		TxID:  op.TxID().String(),
		Op:    op.OpType().String(),
		Token: op.Token(),
		Context: wireContext{
			Block:  ctx.Block,
			Sender: ctx.Sender,
			Origin: ctx.Origin,
		},
	}
	for _, o := range ctx.Outputs {
		w.Context.Outputs = append(w.Context.Outputs, wireOutput{Value: o.Value, Recipient: o.Recipient})
	}

	switch o := op.(type) {
	case *CreatePool:
		w.FloorPrice = decString(o.FloorPrice)
		w.InitialLiquidity = decString(o.InitialLiquidity)
		w.Receiver = o.Receiver
		w.MaxReservesPercent = o.MaxReservesPercent
	case *ListLiquidity:
		w.Amount = decString(o.Amount)
		w.Receiver = o.Receiver
		w.Priority = o.Priority
	case *Reserve:
		w.MaximumAmountIn = o.MaximumAmountIn
		w.MinimumAmountOut = decString(o.MinimumAmountOut)
		w.ActivationDelay = o.ActivationDelay
		w.ForLiquidityPool = o.ForLiquidityPool
	case *Swap, *CancelListing, *RemoveLiquidity:
	default:
		return nil, fmt.Errorf("unknown operation %T", op)
	}
	return json.Marshal(w)
}

// UnmarshalOperation decodes one transaction in the wire format.
func UnmarshalOperation(data []byte) (Operation, error) {
	var w wireTx
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return w.operation()
}

// UnmarshalOperationAs decodes a transaction whose type is already known
// from its transport, such as a NATS subject. A payload may omit "op" but
// must not contradict expected.
func UnmarshalOperationAs(data []byte, expected OpType) (Operation, error) {
	var w wireTx
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", expected, err)
	}
	switch {
	case w.Op == "":
		w.Op = expected.String()
	case ParseOpType(w.Op) != expected:
		return nil, fmt.Errorf("payload op %q does not match %s", w.Op, expected)
	}
	return w.operation()
}

func (w *wireTx) operation() (Operation, error) {
	id, err := uuid.Parse(w.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse tx_id: %w", err)
	}
	if w.Token == "" {
		return nil, fmt.Errorf("transaction %s has no token", id)
	}
	if w.Context.Sender == "" {
		return nil, fmt.Errorf("transaction %s has no sender", id)
	}

	meta := Meta{ID: id, Pool: w.Token, Ctx: ExecutionContext{
		Block:  w.Context.Block,
		Sender: w.Context.Sender,
		Origin: w.Context.Origin,
	}}
	if meta.Ctx.Origin == "" {
		meta.Ctx.Origin = meta.Ctx.Sender
	}
	for _, o := range w.Context.Outputs {
		meta.Ctx.Outputs = append(meta.Ctx.Outputs, PaymentOutput{Value: o.Value, Recipient: o.Recipient})
	}

	switch ParseOpType(w.Op) {
	case OpCreatePool:
		floor, err := parseDec("floor_price", w.FloorPrice)
		if err != nil {
			return nil, err
		}
		initial, err := parseDec("initial_liquidity", w.InitialLiquidity)
		if err != nil {
			return nil, err
		}
		return &CreatePool{Meta: meta, FloorPrice: floor, InitialLiquidity: initial,
			Receiver: w.Receiver, MaxReservesPercent: w.MaxReservesPercent}, nil
	case OpListLiquidity:
		amount, err := parseDec("amount", w.Amount)
		if err != nil {
			return nil, err
		}
		return &ListLiquidity{Meta: meta, Amount: amount, Receiver: w.Receiver, Priority: w.Priority}, nil
	case OpReserve:
		minOut := new(uint256.Int)
		if w.MinimumAmountOut != "" {
			if minOut, err = parseDec("minimum_amount_out", w.MinimumAmountOut); err != nil {
				return nil, err
			}
		}
		return &Reserve{Meta: meta, MaximumAmountIn: w.MaximumAmountIn, MinimumAmountOut: minOut,
			ActivationDelay: w.ActivationDelay, ForLiquidityPool: w.ForLiquidityPool}, nil
	case OpSwap:
		return &Swap{Meta: meta}, nil
	case OpCancelListing:
		return &CancelListing{Meta: meta}, nil
	case OpRemoveLiquidity:
		return &RemoveLiquidity{Meta: meta}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", w.Op)
	}
}

func decString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func parseDec(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}
