package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmarkelov/talkwire-server/internal/auth"
	"github.com/vmarkelov/talkwire-server/internal/core"
	"github.com/vmarkelov/talkwire-server/internal/proto"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	authService *auth.Service
	store       store.Store
	registry    *core.Registry
	router      *core.Router
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(authService *auth.Service, st store.Store, registry *core.Registry, router *core.Router, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		authService: authService,
		store:       st,
		registry:    registry,
		router:      router,
		log:         logger,
	}
}

// Attach authenticates the credential, upgrades the connection, and
// runs the read/write loop pair until either side closes.
// GET /ws?token=... (or Authorization: Bearer)
func (h *WSHandler) Attach(c *gin.Context) {
	// Authentication happens before the upgrade so a bad credential gets
	// a proper 401 and never touches the registry.
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess := core.NewSession()
	if !sess.Bind(user.ID, user.Name) || !sess.Activate() {
		h.log.Error().Int64("user_id", user.ID).Msg("session state machine rejected fresh session")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.registry.Register(ctx, sess)
	defer func() {
		sess.Close()
		// The registry ignores this when a newer session took over.
		h.registry.Unregister(context.WithoutCancel(ctx), sess)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate resolves the token from the query string or the
// Authorization header to a known user.
func (h *WSHandler) authenticate(c *gin.Context) (*store.User, bool) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing token"})
		return nil, false
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return nil, false
	}

	user, err := h.store.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Debug().Err(err).Int64("user_id", claims.UserID).Msg("ws token for unknown user")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown user"})
		return nil, false
	}

	return user, true
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		protoErr, err := h.dispatch(ctx, sess, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to handle inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case event, ok := <-sess.Events():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", sess.ID).Msg("write ws event")
				return err
			}
		case <-sess.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
