package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgersync/internal/logger"
	"ledgersync/internal/remote"
)

const feedWriteTimeout = 5 * time.Second

// ChangesHandler streams a collection's changes over WebSocket.
type ChangesHandler struct {
	store remote.Store
	log   *zap.SugaredLogger
}

// NewChangesHandler creates a new ChangesHandler
func NewChangesHandler(store remote.Store) *ChangesHandler {
	return &ChangesHandler{store: store, log: logger.Named("gateway.changes")}
}

// Stream upgrades the request and forwards every change to the owner's
// documents until the client goes away. The first frame is FeedReady, sent
// once the watch is registered.
// GET /collections/:collection/changes?owner_id=
func (h *ChangesHandler) Stream(c *gin.Context) {
	var uri collectionURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}
	ownerID, err := bindOwner(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	log := h.log.With("collection", uri.Collection, "owner_id", ownerID)
	send := func(msg remote.FeedMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), feedWriteTimeout)
		defer cancel()
		return conn.Write(ctx, websocket.MessageText, data)
	}

	stop, err := h.store.Watch(c.Request.Context(), uri.Collection, ownerID, func(ch remote.Change) {
		if err := send(remote.FeedMessage{Type: remote.FeedChange, Change: &ch}); err != nil {
			log.Warnw("failed to forward change", "id", ch.Document.ID, "error", err)
		}
	})
	if err != nil {
		log.Warnw("watch failed", "error", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "watch failed")
		return
	}
	defer stop()

	if err := send(remote.FeedMessage{Type: remote.FeedReady}); err != nil {
		return
	}
	log.Debugw("change feed open")

	// Clients never send data; CloseRead's context ends when they disconnect.
	<-conn.CloseRead(c.Request.Context()).Done()
	log.Debugw("change feed closed")
}
