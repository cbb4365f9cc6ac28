package adminapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/koddahub/whatsbot/internal/instance"
	"github.com/koddahub/whatsbot/internal/webserver"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type MessageAPI struct {
	mgr *instance.Manager
}

func RegisterMessageAPI(ws *webserver.WebServer, mgr *instance.Manager) {
	h := &MessageAPI{mgr: mgr}
	api := ws.API()
	api.GET("/messages", h.listMessages)
	api.POST("/messages/send", h.sendMessage)
	api.POST("/notify-admin", h.notifyAdmin)
}

func (h *MessageAPI) listMessages(c echo.Context) error {
	page, pageSize := parsePagination(c)
	msgs, total, err := h.mgr.Messages(c.QueryParam("instance_id"), page, pageSize)
	if err != nil {
		zap.L().Warn("adminapi: list messages failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages")
	}
	return paged(c, msgs, total, page, pageSize)
}

// sendMessage sends an outbound text. When instance_id is omitted, any
// connected instance is used.
func (h *MessageAPI) sendMessage(c echo.Context) error {
	var payload struct {
		InstanceId string `json:"instance_id"`
		Number     string `json:"number"`
		Text       string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request")
	}
	if payload.Number == "" || payload.Text == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "number and text are required")
	}

	id := payload.InstanceId
	if id == "" {
		entry, ok := h.mgr.Registry().FirstConnected()
		if !ok {
			return fail(c, http.StatusConflict, "NO_CONNECTED_INSTANCE", "No connected instance available")
		}
		id = entry.ID
	}

	err := h.mgr.SendText(c.Request().Context(), id, payload.Number, payload.Text)
	switch {
	case errors.Is(err, instance.ErrInstanceNotFound):
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found")
	case errors.Is(err, instance.ErrNotConnected):
		return fail(c, http.StatusConflict, "INSTANCE_NOT_CONNECTED", "Instance has no usable session")
	case err != nil:
		zap.L().Warn("adminapi: send message failed", zap.String("instance_id", id), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message")
	}
	return ok(c, map[string]interface{}{"sent": true, "instance_id": id})
}

// notifyAdmin forwards a site event (contact form etc.) to the configured
// admin number as a formatted chat message.
func (h *MessageAPI) notifyAdmin(c echo.Context) error {
	var payload struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
		Origin  string `json:"origin"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request")
	}
	if payload.Name == "" {
		payload.Name = "Visitante"
	}
	if payload.Origin == "" {
		payload.Origin = "formulário do site"
	}
	text := fmt.Sprintf("🔔 *Nova mensagem do site*\n\n*Nome:* %s\n*Email:* %s\n*Origem:* %s\n*Mensagem:* %s",
		payload.Name, payload.Email, payload.Origin, payload.Message)

	if err := h.mgr.NotifyAdmin(c.Request().Context(), text); err != nil {
		zap.L().Warn("adminapi: admin notification failed", zap.Error(err))
		return fail(c, http.StatusServiceUnavailable, "NOTIFY_FAILED", "Failed to notify admin")
	}
	return ok(c, map[string]interface{}{"success": true})
}
