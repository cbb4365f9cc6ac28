package adminapi

import (
	_ "embed"
	"net/http"

	"github.com/koddahub/whatsbot/internal/webserver"
	"github.com/labstack/echo/v4"
)

//go:embed admin.html
var adminPageHTML string

// RegisterAdminPage serves the static admin page at /admin on the root
// router (outside the /api group).
func RegisterAdminPage(ws *webserver.WebServer) {
	ws.Echo().GET("/admin", func(c echo.Context) error {
		return c.HTML(http.StatusOK, adminPageHTML)
	})
}
