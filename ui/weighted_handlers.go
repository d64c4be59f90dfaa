package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mmmstudio/app"
)

type weightsBody struct {
	BaseName string             `json:"baseName"`
	Weights  map[string]float64 `json:"weights"`
}

func (s *Server) handleSeedWeighted(c *gin.Context) {
	var req app.SeedRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Model = c.Param("model")

	draft, err := s.services.Weighted.Seed(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
}

func (s *Server) handleCreateWeighted(c *gin.Context) {
	var body weightsBody
	if !bindJSON(c, &body) {
		return
	}
	draft := &app.WeightedDraft{
		Model:    c.Param("model"),
		Mode:     app.WeightedCreate,
		BaseName: body.BaseName,
		Weights:  body.Weights,
	}
	name, err := s.services.Weighted.Create(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "variable": name, "draft": draft})
}

func (s *Server) handleGetWeighted(c *gin.Context) {
	draft, err := s.services.Weighted.Load(c.Request.Context(), c.Param("model"), c.Param("variable"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
}

func (s *Server) handleUpdateWeighted(c *gin.Context) {
	var body weightsBody
	if !bindJSON(c, &body) {
		return
	}
	draft := &app.WeightedDraft{
		Model:        c.Param("model"),
		Mode:         app.WeightedUpdate,
		BaseName:     body.BaseName,
		VariableName: c.Param("variable"),
		Weights:      body.Weights,
	}
	if err := s.services.Weighted.Update(c.Request.Context(), draft); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
}
