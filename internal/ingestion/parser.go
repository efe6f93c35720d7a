package ingestion

import (
	"NativeSwap/internal/event"
	"fmt"
	"strings"
	"unicode"
)

// ParseRawTx converts a RawTx into a typed operation. The subject fixes the
// operation type; the payload is the JSON wire format.
func ParseRawTx(raw RawTx) (event.Operation, error) {
	if raw.Op == event.OpUnknown {
		op, err := OpFromSubject(raw.Subject)
		if err != nil {
			return nil, err
		}
		raw.Op = op
	}
	op, err := event.UnmarshalOperationAs(raw.Data, raw.Op)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", raw.Op, err)
	}
	if tok := subjectTokenPart(raw.Subject); tok != "" && tok != op.Token() {
		return nil, fmt.Errorf("subject %s addresses token %q, payload has %q", raw.Subject, tok, op.Token())
	}
	return op, nil
}

// OpFromSubject reads the operation out of nswap.tx.<op>.<token>.
func OpFromSubject(subject string) (event.OpType, error) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != "nswap" || parts[1] != "tx" {
		return event.OpUnknown, fmt.Errorf("subject %q is not a transaction subject", subject)
	}
	op, err := OpFromName(parts[2])
	if err != nil {
		return event.OpUnknown, fmt.Errorf("subject %q: %w", subject, err)
	}
	return op, nil
}

// OpFromName accepts an operation as either "CreatePool" or "create_pool".
func OpFromName(name string) (event.OpType, error) {
	for op := event.OpCreatePool; op <= event.OpRemoveLiquidity; op++ {
		if op.String() == name || subjectToken(op.String()) == name {
			return op, nil
		}
	}
	return event.OpUnknown, fmt.Errorf("unknown operation %q", name)
}

// subjectTokenPart returns the <token> segment, or "" when the subject has none.
func subjectTokenPart(subject string) string {
	parts := strings.SplitN(subject, ".", 4)
	if len(parts) < 4 || parts[0] != "nswap" || parts[1] != "tx" {
		return ""
	}
	return parts[3]
}

// subjectToken renders CamelCase as snake_case: "CreatePool" gives "create_pool".
func subjectToken(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
