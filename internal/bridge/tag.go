package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gregLibert/cardshare/pkg/hce"
)

// Tag is the initiator's view of a remote responder. It implements hce.Tag.
type Tag struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ hce.Tag = (*Tag)(nil)

// Dial returns a Tag for the websocket URL of a bridge Server. Nothing is
// opened before Connect.
func Dial(url string) *Tag {
	return &Tag{url: url, dialer: websocket.DefaultDialer}
}

func (t *Tag) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	t.conn = conn
	return nil
}

func (t *Tag) Transceive(ctx context.Context, frame []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, hce.ErrTagLost
	}

	deadline, _ := ctx.Deadline()
	_ = t.conn.SetWriteDeadline(deadline)
	_ = t.conn.SetReadDeadline(deadline)

	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, t.linkError(err)
	}
	for {
		messageType, resp, err := t.conn.ReadMessage()
		if err != nil {
			return nil, t.linkError(err)
		}
		if messageType == websocket.BinaryMessage {
			return resp, nil
		}
	}
}

// linkError classifies a websocket failure. The connection is unusable
// afterwards either way.
func (t *Tag) linkError(err error) error {
	t.conn.Close()
	t.conn = nil

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %v", hce.ErrTagLost, err)
}

func (t *Tag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := t.conn.Close()
	t.conn = nil
	return err
}
