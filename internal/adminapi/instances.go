// Package adminapi exposes the HTTP control surface. Handlers hold the
// lifecycle manager by injection; they never talk to the session engine
// directly except through manager operations.
package adminapi

import (
	"errors"
	"net/http"

	"github.com/koddahub/whatsbot/internal/domain"
	"github.com/koddahub/whatsbot/internal/instance"
	"github.com/koddahub/whatsbot/internal/webserver"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type InstanceAPI struct {
	mgr *instance.Manager
}

func RegisterInstanceAPI(ws *webserver.WebServer, mgr *instance.Manager) {
	h := &InstanceAPI{mgr: mgr}
	api := ws.API()
	api.GET("/instances", h.listInstances)
	api.POST("/instances", h.createInstance)
	api.GET("/instances/:id", h.getInstance)
	api.GET("/instances/:id/qr", h.getInstanceQR)
	api.POST("/instances/:id/connect", h.connectInstance)
}

// listInstances returns the durable records as a plain JSON array.
func (h *InstanceAPI) listInstances(c echo.Context) error {
	recs, err := h.mgr.List()
	if err != nil {
		zap.L().Warn("adminapi: list instances failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list instances")
	}
	if recs == nil {
		recs = []domain.ChatInstance{}
	}
	return ok(c, recs)
}

func (h *InstanceAPI) createInstance(c echo.Context) error {
	var payload struct {
		Name   string `json:"name"`
		Number string `json:"number"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request")
	}
	rec, err := h.mgr.CreateInstance(payload.Name, payload.Number)
	var verr *instance.ValidationError
	if errors.As(err, &verr) {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "name and number are required")
	}
	if err != nil {
		zap.L().Warn("adminapi: create instance failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create instance")
	}
	return ok(c, map[string]interface{}{
		"success":  true,
		"instance": rec,
	})
}

func (h *InstanceAPI) getInstance(c echo.Context) error {
	rec, err := h.mgr.Get(c.Param("id"))
	if errors.Is(err, instance.ErrInstanceNotFound) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found")
	}
	if err != nil {
		zap.L().Warn("adminapi: get instance failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query instance")
	}
	return ok(c, rec)
}

// getInstanceQR returns the pairing artifact and current status from the
// session registry. A known instance with no artifact yet answers qr=null,
// which the admin page polls until the code shows up.
func (h *InstanceAPI) getInstanceQR(c echo.Context) error {
	artifact, status, err := h.mgr.PairingArtifact(c.Param("id"))
	if errors.Is(err, instance.ErrInstanceNotFound) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found")
	}
	var qr interface{}
	if artifact != "" {
		qr = artifact
	}
	return ok(c, map[string]interface{}{
		"qr":     qr,
		"status": status,
	})
}

func (h *InstanceAPI) connectInstance(c echo.Context) error {
	err := h.mgr.Reconnect(c.Param("id"))
	if errors.Is(err, instance.ErrInstanceNotFound) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found")
	}
	if err != nil {
		zap.L().Warn("adminapi: reconnect failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "CONNECT_FAILED", "Failed to reconnect instance")
	}
	return ok(c, map[string]interface{}{"started": true})
}
