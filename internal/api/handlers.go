package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BTreeMap/FolioPipe/internal/folio"
	"github.com/BTreeMap/FolioPipe/internal/models"
)

func (s *Server) healthHandler(c *gin.Context) {
	writeJSONResponse(c, http.StatusOK, models.Success(nil))
}

// turnHandler runs one conversation turn for the posted message.
func (s *Server) turnHandler(c *gin.Context) {
	var msg models.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		slog.Warn("Server.turnHandler: invalid request", "error", err)
		writeJSONResponse(c, http.StatusBadRequest, models.Error("Invalid request: "+err.Error()))
		return
	}

	resp := s.engine.HandleTurn(c.Request.Context(), msg)
	slog.Debug("Server.turnHandler: turn handled", "userID", msg.UserID, "buttons", len(resp.Buttons))
	writeJSONResponse(c, http.StatusOK, models.Success(resp))
}

// serviceHandler looks up a service record. The path parameter goes through
// the folio extractor, so "xrom 12345" finds XROM-12345.
func (s *Server) serviceHandler(c *gin.Context) {
	f, ok := folio.Extract(c.Param("folio"))
	if !ok {
		writeJSONResponse(c, http.StatusBadRequest, models.Error("Invalid folio"))
		return
	}

	rec, err := s.repo.FindByFolio(c.Request.Context(), f)
	if err != nil {
		slog.Error("Server.serviceHandler: lookup failed", "error", err, "folio", f)
		writeJSONResponse(c, http.StatusInternalServerError, models.Error("Failed to look up folio"))
		return
	}
	if rec == nil {
		writeJSONResponse(c, http.StatusNotFound, models.NotFound("Folio "+f+" not found"))
		return
	}
	writeJSONResponse(c, http.StatusOK, models.Success(rec))
}
