package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/txmesh/signaling/internal/app"
	"github.com/txmesh/signaling/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the session lifecycle. Read failure of any kind means the
// transport is gone: cancel the connection context, run the hub cleanup
// and close the connection. Transport faults are never surfaced to peers
// beyond the resulting peer-left notification.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *app.Session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Msg("readPump closing")
		cancel()
		ctl.Hub.Disconnect(sess)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(sess, c, data)
		}
	}
}

// dispatch classifies one inbound frame and invokes the matching hub
// operation. Malformed frames get an error reply and the connection stays
// open; unknown frame types are dropped without a reply, deliberately
// asymmetric with the malformed case.
func (ctl *Controller) dispatch(sess *app.Session, c *wsConn, data []byte) {
	env, kind, err := protocol.Decode(data)
	if err != nil {
		ctl.sendJSON(c, protocol.NewError("Invalid message format"))
		return
	}
	ctl.Hub.CountFrame(kind.String())

	switch kind {
	case protocol.KindJoin:
		ctl.Hub.Join(sess, env.RoomID, env.PeerID)
	case protocol.KindLeave:
		ctl.Hub.Leave(sess, env.RoomID)
	case protocol.KindOffer, protocol.KindAnswer, protocol.KindICECandidate:
		ctl.Hub.Relay(sess, env, data)
	case protocol.KindTransaction:
		ctl.Hub.Broadcast(sess, env)
	case protocol.KindPing:
		ctl.sendJSON(c, protocol.NewPong())
	case protocol.KindUnknown:
		log.Debug().Str("module", "signal").Str("type", env.Type).Msg("unknown frame type dropped")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}
