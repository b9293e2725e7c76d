package statusws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/tiroq/voxbox/internal/statemachine"
)

// URL returns the websocket URL for a listen address like 127.0.0.1:4466.
func URL(addr string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	return u.String()
}

// Watch connects to wsURL and calls fn for every state event until ctx is
// cancelled or the connection drops. A cancelled ctx returns nil.
func Watch(ctx context.Context, wsURL string, fn func(StateEvent)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var peek struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &peek) != nil || peek.Type != TypeState {
			continue
		}
		var ev StateEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			fn(ev)
		}
	}
}

// SendIntent connects to wsURL, sends one intent and disconnects.
func SendIntent(ctx context.Context, wsURL string, intent statemachine.Intent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(IntentMessage{Type: TypeIntent, Intent: intent}); err != nil {
		return fmt.Errorf("send intent: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
