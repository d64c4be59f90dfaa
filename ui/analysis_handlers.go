package ui

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"mmmstudio/app"
	"mmmstudio/internal/errors"
)

func (s *Server) handleCorrelation(c *gin.Context) {
	var req app.CorrelationRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Model = c.Param("model")

	rep, err := s.services.Correlation.Correlate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		var buf bytes.Buffer
		if err := s.exporter.WriteCorrelation(&buf, rep.Matrix, rep.Profiles); err != nil {
			respondError(c, errors.Wrapf(err, "failed to export correlation for %s", req.Model))
			return
		}
		attachment(c, fmt.Sprintf("%s-correlation.xlsx", rep.Model), buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": rep})
}

func (s *Server) handleSweep(c *gin.Context) {
	var req app.SweepRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Model = c.Param("model")

	res, err := s.services.Sweep.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"success": true, "result": res}
	if n := len(res.Failures); n > 0 {
		tagPartial(body, errors.PartialFailure(fmt.Sprintf("%d of %d adstock rates failed for %s", n, n+len(res.Ranked), res.Variable)))
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleScreen(c *gin.Context) {
	var req app.ScreeningRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Model = c.Param("model")

	res, err := s.services.Screening.Screen(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"success": true, "result": res}
	if n := len(res.Failures); n > 0 {
		tagPartial(body, errors.PartialFailure(fmt.Sprintf("%d of %d variables failed to test", n, n+len(res.Results))))
	}
	c.JSON(http.StatusOK, body)
}

// tagPartial marks a fan-out response where some or all items failed. The
// result still carries every success and failure.
func tagPartial(body gin.H, partial *errors.AppError) {
	body["code"] = partial.Code
	body["warning"] = partial.Message
}

func (s *Server) handleDecomposition(c *gin.Context) {
	dec, err := s.services.Decomposition.Decompose(c.Request.Context(), c.Param("model"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "decomposition": dec})
}
