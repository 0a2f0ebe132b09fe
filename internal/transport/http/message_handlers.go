package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmarkelov/talkwire-server/internal/core"
	"github.com/vmarkelov/talkwire-server/internal/proto"
	"github.com/vmarkelov/talkwire-server/internal/store"
	"github.com/vmarkelov/talkwire-server/internal/store/sqlite"
	"github.com/vmarkelov/talkwire-server/internal/upload"
)

// MessageHandlers provides HTTP handlers for message operations.
// Sending goes through the event router so HTTP and WebSocket senders
// get identical delivery and receipt behavior.
type MessageHandlers struct {
	router  *core.Router
	store   store.Store
	uploads *upload.Store
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(router *core.Router, st store.Store, uploads *upload.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		router:  router,
		store:   st,
		uploads: uploads,
		log:     logger,
	}
}

// Send persists and routes one message with an optional attachment.
// POST /api/messages (multipart form: to, content, attachment)
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	to, err := strconv.ParseInt(c.PostForm("to"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid recipient id"})
		return
	}
	content := c.PostForm("content")

	attachment := ""
	kind := store.AttachmentNone
	if file, err := c.FormFile("attachment"); err == nil {
		src, err := file.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to open attachment upload")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		defer src.Close()

		attachment, kind, err = h.uploads.Save(upload.KindMessage, file.Filename, src)
		if err != nil {
			h.log.Debug().Err(err).Msg("attachment upload rejected")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported attachment file"})
			return
		}
	}

	msg, err := h.router.SendMessage(c.Request.Context(), uid, to, content, attachment, kind)
	if err != nil {
		if attachment != "" {
			_ = h.uploads.Remove(attachment)
		}
		h.respondSendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.messagePayload(c, msg))
}

// maxBatchAttachments caps one batch send.
const maxBatchAttachments = 10

// SendMultiple persists a batch as individual messages: the optional
// content first, then one message per attachment. Each goes through
// the event router, so delivery and receipts behave exactly like
// single sends.
// POST /api/messages/multiple (multipart form: to, content, attachments)
func (h *MessageHandlers) SendMultiple(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	to, err := strconv.ParseInt(c.PostForm("to"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid recipient id"})
		return
	}
	content := strings.TrimSpace(c.PostForm("content"))

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
		return
	}
	files := form.File["attachments"]
	if len(files) == 0 && content == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no attachments or content provided"})
		return
	}
	if len(files) > maxBatchAttachments {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "too many attachments"})
		return
	}

	response := make([]*proto.MessagePayload, 0, len(files)+1)

	if content != "" {
		msg, err := h.router.SendMessage(c.Request.Context(), uid, to, content, "", store.AttachmentNone)
		if err != nil {
			h.respondSendError(c, err)
			return
		}
		response = append(response, h.messagePayload(c, msg))
	}

	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to open attachment upload")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		attachment, kind, err := h.uploads.Save(upload.KindMessage, file.Filename, src)
		src.Close()
		if err != nil {
			h.log.Debug().Err(err).Str("filename", file.Filename).Msg("attachment upload rejected")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported attachment file: " + file.Filename})
			return
		}

		msg, err := h.router.SendMessage(c.Request.Context(), uid, to, "", attachment, kind)
		if err != nil {
			_ = h.uploads.Remove(attachment)
			h.respondSendError(c, err)
			return
		}
		response = append(response, h.messagePayload(c, msg))
	}

	c.JSON(http.StatusCreated, response)
}

// GetConversation returns both directions of one conversation, oldest
// first. The requester must be one of the two participants.
// GET /api/messages/:userID/:contactID
func (h *MessageHandlers) GetConversation(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	userID, err1 := strconv.ParseInt(c.Param("userID"), 10, 64)
	contactID, err2 := strconv.ParseInt(c.Param("contactID"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	if uid != userID && uid != contactID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a conversation participant"})
		return
	}

	messages, err := h.store.ListConversation(c.Request.Context(), userID, contactID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]*proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		response = append(response, h.messagePayload(c, msg))
	}

	c.JSON(http.StatusOK, response)
}

// Delete removes one message record and its attachment blob. Only the
// sender may delete.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	id := c.Param("id")
	msg, err := h.store.GetMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message_id", id).Msg("failed to load message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if msg.From != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the sender can delete a message"})
		return
	}

	if err := h.store.DeleteMessage(c.Request.Context(), id); err != nil {
		h.log.Error().Err(err).Str("message_id", id).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if msg.Attachment != "" {
		if err := h.uploads.Remove(msg.Attachment); err != nil {
			h.log.Warn().Err(err).Str("message_id", id).Msg("failed to remove attachment blob")
		}
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "message deleted"})
}

func (h *MessageHandlers) respondSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrSelfMessage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrUnknownRecipient):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// messagePayload converts a message to its wire form with the
// attachment path resolved absolute against the request host.
func (h *MessageHandlers) messagePayload(c *gin.Context, msg *store.Message) *proto.MessagePayload {
	payload := proto.NewMessagePayload(msg)
	if payload.Attachment != "" && strings.HasPrefix(payload.Attachment, "/") {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		payload.Attachment = scheme + "://" + c.Request.Host + payload.Attachment
	}
	return payload
}
