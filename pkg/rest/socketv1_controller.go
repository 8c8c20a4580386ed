package rest

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
	"github.com/zeusnotfound04/nanomail/pkg/rest/model"
	"github.com/zeusnotfound04/nanomail/pkg/server/web"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Events buffered per socket before the listener is dropped from the hub.
	listenerQueueLen = 100
)

var (
	errListenerClosed = errors.New("listener closed")
	errListenerFull   = errors.New("listener queue full")
)

// options for gorilla connection upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// msgListener relays hub events for one inbox to a websocket.
type msgListener struct {
	hub     *msghub.Hub                    // Global message hub.
	c       chan *model.JSONMonitorEventV1 // Queue of incoming events.
	done    chan struct{}                  // Closed once the socket is finished.
	once    sync.Once
	address string          // Normalized address to monitor.
	seen    map[string]bool // IDs relayed to this socket, only touched by the hub.
}

// newMsgListener creates a listener and registers it.
func newMsgListener(hub *msghub.Hub, address string) *msgListener {
	ml := &msgListener{
		hub:     hub,
		c:       make(chan *model.JSONMonitorEventV1, listenerQueueLen),
		done:    make(chan struct{}),
		address: address,
		seen:    make(map[string]bool),
	}
	hub.AddListener(ml)
	return ml
}

// Receive handles an incoming message.
func (ml *msgListener) Receive(msg msghub.Message) error {
	if !msg.HasRecipient(ml.address) {
		return nil
	}
	ml.seen[msg.ID] = true
	return ml.enqueue(&model.JSONMonitorEventV1{
		Variant: "message-stored",
		Header: &model.JSONMessageHeaderV1{
			ID:      msg.ID,
			From:    msg.Sender,
			To:      msg.Recipients,
			Subject: msg.Subject,
			Date:    msg.Date,
			Size:    msg.Size,
		},
	})
}

// Delete handles a deleted message, only messages previously relayed are of interest.
func (ml *msgListener) Delete(id string) error {
	if !ml.seen[id] {
		return nil
	}
	delete(ml.seen, id)
	return ml.enqueue(&model.JSONMonitorEventV1{Variant: "message-deleted", ID: id})
}

// enqueue never blocks the hub, a slow socket loses its registration instead.
func (ml *msgListener) enqueue(event *model.JSONMonitorEventV1) error {
	select {
	case <-ml.done:
		return errListenerClosed
	default:
	}
	select {
	case ml.c <- event:
		return nil
	default:
		return errListenerFull
	}
}

// WSReader makes sure the websocket client is still connected, discards any messages from client
func (ml *msgListener) WSReader(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()
	defer ml.Close()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn().Err(err).Msg("Failed to setup read deadline")
	}
	conn.SetPongHandler(func(string) error {
		slog.Debug().Msg("Got pong")
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn().Err(err).Msg("Failed to set read deadline in pong")
		}
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				// Unexpected close code
				slog.Warn().Err(err).Msg("Socket error")
			} else {
				slog.Debug().Msg("Closing socket")
			}
			break
		}
	}
}

// WSWriter makes sure the websocket client is still connected
func (ml *msgListener) WSWriter(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ml.Close()
	}()

	// Handle messages from hub until msgListener is closed
	for {
		select {
		case <-ml.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case event := <-ml.c:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for msg")
			}
			if conn.WriteJSON(event) != nil {
				// Write failed
				return
			}
		case <-ticker.C:
			// Send ping
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for ping")
			}
			if conn.WriteMessage(websocket.PingMessage, []byte{}) != nil {
				// Write error
				return
			}
			slog.Debug().Msg("Sent ping")
		}
	}
}

// Close removes the listener registration
func (ml *msgListener) Close() {
	ml.once.Do(func() {
		close(ml.done)
		ml.hub.RemoveListener(ml)
	})
}

// MonitorInboxV1 is a web handler which upgrades the connection to a websocket and notifies the
// client of messages delivered to, and deleted from, an inbox.
func MonitorInboxV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	address := ctx.Manager.AddressFor(ctx.Vars["address"])
	if address == "" {
		http.NotFound(w, req)
		return nil
	}
	// Upgrade to Websocket.
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}
	web.ExpWebSocketConnectsCurrent.Add(1)
	defer func() {
		_ = conn.Close()
		web.ExpWebSocketConnectsCurrent.Add(-1)
	}()
	log.Debug().Str("module", "rest").Str("proto", "WebSocket").Str("address", address).
		Str("remote", conn.RemoteAddr().String()).Msg("Upgraded to WebSocket")
	// Create, register listener; then interact with conn.
	ml := newMsgListener(ctx.MsgHub, address)
	go ml.WSWriter(conn)
	ml.WSReader(conn)
	return nil
}
