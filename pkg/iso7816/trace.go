package iso7816

import "github.com/rs/zerolog"

// Transaction is one C-APDU and the R-APDU it got back.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess is false for a transaction without a response.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is every transaction sent for one logical command, follow-ups for
// 61XX and 6CXX included, in order.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess judges the logical command by its final transaction only.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status is the final status word, or zero when nothing was answered.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data joins the response data of a GET RESPONSE chain: every 61XX answer
// and the final one. Answers to a command re-issued after 6CXX are dropped.
func (t Trace) Data() []byte {
	var out []byte
	for i, tx := range t {
		if tx.Response == nil {
			continue
		}
		if i == len(t)-1 || tx.Response.Status.SW1() == 0x61 {
			out = append(out, tx.Response.Data...)
		}
	}
	return out
}

// MarshalZerologArray logs the trace as a list of "INS=SW" pairs.
func (t Trace) MarshalZerologArray(a *zerolog.Array) {
	for _, tx := range t {
		if tx.Command == nil || tx.Response == nil {
			continue
		}
		a.Str(tx.Command.Instruction.Raw.String() + "=" + tx.Response.Status.String())
	}
}
