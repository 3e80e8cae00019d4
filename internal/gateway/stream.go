package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// KindHistory tags ledger entries replayed to a new stream.
const KindHistory model.Kind = "history"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream registers the wallet for monitoring, replays its recent ledger
// and then streams every message published on the wallet's channel.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if err := s.ValidateAddress(wallet); err != nil {
		writeError(w, badRequest("%v", err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("stream %s: upgrade: %v", wallet, err)
		return
	}
	defer conn.Close()

	sub := s.Hub.Subscribe(wallet)
	defer s.Hub.Unsubscribe(sub)
	if _, started := s.Registry.Register(wallet); started {
		logger.Info("stream %s: monitor started", wallet)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	if err := s.replay(ctx, conn, wallet); err != nil {
		logger.Warn("stream %s: replay: %v", wallet, err)
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeMessage(conn, msg); err != nil {
				logger.Debug("stream %s: write: %v", wallet, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) replay(ctx context.Context, conn *websocket.Conn, wallet string) error {
	entries, err := s.Store.ListEntries(ctx, wallet, s.ReplayLimit)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if err := writeMessage(conn, model.Message{Kind: KindHistory, Payload: entries[i]}); err != nil {
			return err
		}
	}
	return nil
}

func writeMessage(conn *websocket.Conn, msg model.Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readPump discards client frames and cancels the stream when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
