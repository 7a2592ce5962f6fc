package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studiowebux/postdad/internal/types"
)

// ConnState tracks the WebSocket connection lifecycle.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
	StateFailed     ConnState = "failed"
)

// transcriptMessage is one recorded frame of the exchange.
type transcriptMessage struct {
	Direction string `json:"direction"` // sent, received, system
	Type      string `json:"type,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// transcript is the normalized WebSocket result body.
type transcript struct {
	State            ConnState           `json:"state"`
	Messages         []transcriptMessage `json:"messages"`
	SentCount        int                 `json:"sentCount"`
	ReceivedCount    int                 `json:"receivedCount"`
	DisconnectReason string              `json:"disconnectReason,omitempty"`
}

// sendWebSocket connects, walks the scripted message sequence, then
// closes. The normalized result carries the handshake status and a
// JSON transcript as the body; connect faults and receive timeouts
// are TransportFailure.
func (d *Dispatcher) sendWebSocket(ctx context.Context, req *types.ResolvedRequest) *types.ExecutionResult {
	start := time.Now()
	tr := transcript{State: StateConnecting}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: req.Timeout,
	}
	if d.TLS != nil {
		tlsCfg, err := buildTLSConfig(d.TLS)
		if err != nil {
			return types.TransportFailure(fmt.Sprintf("TLS configuration error: %v", err), time.Since(start))
		}
		dialer.TLSClientConfig = tlsCfg
	}

	headers := http.Header{}
	for _, h := range req.Headers {
		headers.Add(h.Name, h.Value)
	}

	conn, resp, err := dialer.DialContext(ctx, req.URL, headers)
	if err != nil {
		tr.State = StateFailed
		reason := fmt.Sprintf("connection failed: %v", err)
		if resp != nil {
			reason = fmt.Sprintf("connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("timeout after %s", time.Since(start).Round(time.Millisecond))
		}
		return types.TransportFailure(reason, time.Since(start))
	}
	defer conn.Close()
	tr.State = StateOpen

	status := http.StatusSwitchingProtocols
	respHeaders := map[string]string{}
	if resp != nil {
		status = resp.StatusCode
		for k, v := range resp.Header {
			respHeaders[k] = strings.Join(v, ", ")
		}
	}

	receiveChan := make(chan transcriptMessage, 100)
	receiveErrChan := make(chan error, 1)
	go receiveLoop(conn, receiveChan, receiveErrChan)

	for _, msg := range req.Messages {
		select {
		case <-ctx.Done():
			tr.State = StateClosed
			tr.DisconnectReason = "cancelled"
			return wsResult(status, respHeaders, tr, start)
		default:
		}

		switch msg.Direction {
		case "send", "":
			if err := writeMessage(conn, msg); err != nil {
				tr.State = StateFailed
				return types.TransportFailure(fmt.Sprintf("failed to send message %q: %v", msg.Name, err), time.Since(start))
			}
			tr.SentCount++
			tr.Messages = append(tr.Messages, transcriptMessage{
				Direction: "sent",
				Type:      msg.Type,
				Content:   msg.Content,
				Timestamp: time.Now().Format(time.RFC3339),
			})

		case "receive":
			timeout := time.Duration(msg.TimeoutSec) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			timer := time.NewTimer(timeout)

			select {
			case received := <-receiveChan:
				timer.Stop()
				tr.ReceivedCount++
				tr.Messages = append(tr.Messages, received)
			case err := <-receiveErrChan:
				timer.Stop()
				tr.State = StateFailed
				return types.TransportFailure(fmt.Sprintf("receive error: %v", err), time.Since(start))
			case <-timer.C:
				tr.State = StateFailed
				return types.TransportFailure(fmt.Sprintf("timeout waiting for message %q (%s)", msg.Name, timeout), time.Since(start))
			case <-ctx.Done():
				timer.Stop()
				tr.State = StateClosed
				tr.DisconnectReason = "cancelled"
				return wsResult(status, respHeaders, tr, start)
			}
		}
	}

	// Peer close errors here are fine, the connection may already be gone.
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	tr.State = StateClosed
	tr.DisconnectReason = "completed"
	return wsResult(status, respHeaders, tr, start)
}

func wsResult(status int, headers map[string]string, tr transcript, start time.Time) *types.ExecutionResult {
	body, _ := json.Marshal(tr)
	return &types.ExecutionResult{
		Status:       status,
		StatusText:   fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Headers:      headers,
		Body:         string(body),
		DurationMs:   time.Since(start).Milliseconds(),
		ResponseSize: len(body),
	}
}

func writeMessage(conn *websocket.Conn, msg types.WebSocketMessage) error {
	messageType := websocket.TextMessage

	switch strings.ToLower(msg.Type) {
	case "json":
		var js json.RawMessage
		if err := json.Unmarshal([]byte(msg.Content), &js); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	case "binary":
		messageType = websocket.BinaryMessage
	}

	return conn.WriteMessage(messageType, []byte(msg.Content))
}

func receiveLoop(conn *websocket.Conn, out chan<- transcriptMessage, errs chan<- error) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}

		kind := "text"
		if messageType == websocket.BinaryMessage {
			kind = "binary"
		}
		out <- transcriptMessage{
			Direction: "received",
			Type:      kind,
			Content:   string(data),
			Timestamp: time.Now().Format(time.RFC3339),
		}
	}
}
