package node

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// Start launches the node's session lifecycle: dial, serve, reconnect.
// It returns immediately; connection state is observable via [Node.Connected]
// and the configured [Hooks]. Start is idempotent.
func (n *Node) Start(ctx context.Context) {
	n.lifecycle.Do(func() {
		go n.run(ctx)
	})
}

// Close permanently shuts the session down. It does not wait on the network.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
	})
}

// run is the session lifecycle loop: one iteration per connection attempt.
func (n *Node) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		default:
		}

		conn, err := n.dial(ctx)
		if err != nil {
			slog.Warn("node dial failed",
				"node", n.cfg.Identifier,
				"err", err,
			)
			if n.hooks.OnError != nil {
				n.hooks.OnError(n, err)
			}
			if !n.waitReconnect(ctx) {
				return
			}
			continue
		}

		n.mu.Lock()
		n.connected = true
		n.reconnectAttempts = 0
		n.mu.Unlock()

		slog.Info("node connected", "node", n.cfg.Identifier)
		if n.hooks.OnConnect != nil {
			n.hooks.OnConnect(n)
		}

		code, reason := n.serve(ctx, conn)

		n.mu.Lock()
		n.connected = false
		n.mu.Unlock()

		slog.Info("node disconnected",
			"node", n.cfg.Identifier,
			"code", code,
			"reason", reason,
		)
		if n.hooks.OnDisconnect != nil {
			n.hooks.OnDisconnect(n, code, reason)
		}

		// Normal and going-away closes are deliberate; do not reconnect.
		if code == int(websocket.StatusNormalClosure) || code == int(websocket.StatusGoingAway) {
			return
		}
		if !n.waitReconnect(ctx) {
			return
		}
	}
}

// dial opens the WebSocket with the worker handshake headers.
func (n *Node) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", n.cfg.Password)
	headers.Set("User-Id", n.userID)
	headers.Set("Client-Name", n.clientName)
	if n.cfg.ResumeKey != "" {
		headers.Set("Resume-Key", n.cfg.ResumeKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, n.cfg.wsURL(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	return conn, err
}

// waitReconnect sleeps the capped backoff delay. It returns false when the
// attempt budget is exhausted or the session is shutting down.
func (n *Node) waitReconnect(ctx context.Context) bool {
	n.mu.Lock()
	n.reconnectAttempts++
	attempts := n.reconnectAttempts
	n.mu.Unlock()

	if n.cfg.RetryAmount >= 0 && attempts > n.cfg.RetryAmount {
		slog.Error("node reconnect attempts exhausted",
			"node", n.cfg.Identifier,
			"attempts", attempts-1,
		)
		return false
	}

	delay := n.cfg.RetryDelay * time.Duration(attempts)
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	slog.Info("node reconnecting",
		"node", n.cfg.Identifier,
		"attempt", attempts,
		"delay", delay,
	)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-n.done:
		return false
	case <-t.C:
		return true
	}
}

// serve runs the read, write and ping loops of one open connection and
// blocks until the connection dies. It returns the close code and reason.
func (n *Node) serve(ctx context.Context, conn *websocket.Conn) (int, string) {
	connDone := make(chan struct{})
	send := make(chan []byte, 16)

	n.sendMu.Lock()
	n.send = send
	n.sendMu.Unlock()

	defer func() {
		n.sendMu.Lock()
		n.send = nil
		n.sendMu.Unlock()
		close(connDone)
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	// One writer goroutine serializes all outbound frames.
	go func() {
		for {
			select {
			case <-connDone:
				return
			case <-n.done:
				return
			case data := <-send:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
		}
	}()

	go n.pingLoop(ctx, connDone)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			code := int(websocket.CloseStatus(err))
			if code < 0 {
				code = int(websocket.StatusAbnormalClosure)
			}
			return code, err.Error()
		}
		n.dispatch(data)
	}
}

// Send queues one frame on the serialized writer. It fails fast, returning
// false, when the stream is closed or the writer is saturated.
func (n *Node) Send(data []byte) bool {
	n.sendMu.Lock()
	send := n.send
	n.sendMu.Unlock()
	if send == nil {
		return false
	}
	select {
	case send <- data:
		return true
	default:
		return false
	}
}

// dispatch routes one inbound frame. Malformed frames are logged and
// skipped; they must not kill the session.
func (n *Node) dispatch(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("node sent malformed frame",
			"node", n.cfg.Identifier,
			"err", err,
		)
		return
	}

	switch msg.Op {
	case protocol.OpReady:
		var ready protocol.Ready
		if err := json.Unmarshal(data, &ready); err != nil {
			slog.Warn("node sent malformed ready", "node", n.cfg.Identifier, "err", err)
			return
		}
		n.mu.Lock()
		n.sessionID = ready.SessionID
		n.mu.Unlock()
		slog.Info("node ready",
			"node", n.cfg.Identifier,
			"session_id", ready.SessionID,
			"resumed", ready.Resumed,
		)
		if n.hooks.OnReady != nil {
			n.hooks.OnReady(n, ready)
		}

	case protocol.OpStats:
		var stats protocol.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			slog.Warn("node sent malformed stats", "node", n.cfg.Identifier, "err", err)
			return
		}
		// Latest-wins: only the newest snapshot is retained.
		n.mu.Lock()
		n.stats = &stats
		n.statsAt = time.Now()
		n.mu.Unlock()
		if n.hooks.OnStats != nil {
			n.hooks.OnStats(n, stats)
		}

	case protocol.OpPlayerUpdate:
		var update protocol.PlayerUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			slog.Warn("node sent malformed player update", "node", n.cfg.Identifier, "err", err)
			return
		}
		if n.hooks.OnPlayerUpdate != nil {
			n.hooks.OnPlayerUpdate(n, update)
		}

	case protocol.OpEvent:
		var event protocol.Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("node sent malformed event", "node", n.cfg.Identifier, "err", err)
			return
		}
		if n.hooks.OnEvent != nil {
			n.hooks.OnEvent(n, event)
		}

	default:
		slog.Debug("node sent unknown op",
			"node", n.cfg.Identifier,
			"op", msg.Op,
		)
	}
}

// pingLoop probes the node's REST endpoint every 30s and records the
// round-trip time.
func (n *Node) pingLoop(ctx context.Context, connDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		_, err := n.rest.Version(probeCtx)
		rtt := time.Since(start)
		cancel()

		if err != nil {
			slog.Warn("node ping failed",
				"node", n.cfg.Identifier,
				"err", err,
			)
			continue
		}

		n.mu.Lock()
		n.ping = rtt
		n.lastPingOK = time.Now()
		n.mu.Unlock()
		n.metrics.RecordPing(ctx, n.cfg.Identifier, rtt.Seconds())

		if rtt > pingWarnThreshold {
			slog.Warn("node ping is slow",
				"node", n.cfg.Identifier,
				"rtt", rtt,
			)
		}
	}
}
