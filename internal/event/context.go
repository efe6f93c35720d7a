package event

// PaymentOutput is one base-currency output of the executing transaction.
type PaymentOutput struct {
	Value     uint64
	Recipient string
}

// ExecutionContext is the read-only ledger view of a call.
type ExecutionContext struct {
	Block   uint64
	Sender  string
	Origin  string
	Outputs []PaymentOutput
}

// SentTo sums every output addressed to recipient.
func (c ExecutionContext) SentTo(recipient string) (uint64, bool) {
	var total uint64
	for _, o := range c.Outputs {
		if o.Recipient != recipient {
			continue
		}
		next := total + o.Value
		if next < total {
			return 0, false
		}
		total = next
	}
	return total, true
}
