package iso7816

import "fmt"

// Transmitter sends one raw C-APDU and returns the raw R-APDU. A PC/SC card,
// a websocket peer or a test script all qualify.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransmitterFunc adapts a plain function to the Transmitter interface.
type TransmitterFunc func(cmd []byte) ([]byte, error)

// Transmit calls f(cmd).
func (f TransmitterFunc) Transmit(cmd []byte) ([]byte, error) {
	return f(cmd)
}

// maxFollowUps bounds the GET RESPONSE and re-issue rounds of one command.
const maxFollowUps = 8

// Client sends logical commands, answering the T=0 procedure bytes itself:
// 61XX gets a GET RESPONSE for XX bytes, 6CXX re-issues the command with
// Le = XX. Every exchange ends up in the returned Trace.
type Client struct {
	Card Transmitter
}

func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits cmd and any follow-ups it triggers.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	return c.send(cmd, 0)
}

func (c *Client) send(cmd *CommandAPDU, depth int) (Trace, error) {
	if depth > maxFollowUps {
		return nil, fmt.Errorf("too many follow-up commands for %s", cmd.Instruction.Raw)
	}

	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	trace := Trace{{Command: cmd, Response: resp}}

	var next *CommandAPDU
	switch sw2 := int(resp.Status.SW2()); resp.Status.SW1() {
	case 0x61:
		// Same logical channel, never chained.
		cls := cmd.Class
		cls.IsChained = false
		ins, _ := NewInstruction(INS_GET_RESPONSE)
		next = NewCommandAPDU(cls, ins, 0x00, 0x00, nil, sw2)
	case 0x6C:
		reissue := *cmd
		reissue.Ne = sw2
		next = &reissue
	default:
		return trace, nil
	}

	rest, err := c.send(next, depth+1)
	return append(trace, rest...), err
}
