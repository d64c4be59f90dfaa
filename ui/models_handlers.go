package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListModels(c *gin.Context) {
	list := s.services.Registry.List()
	if s.services.Registry.RefreshedAt().IsZero() {
		refreshed, err := s.services.Registry.Refresh(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		list = refreshed
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"models":      list.Models,
		"activeModel": list.ActiveModel,
		"refreshedAt": s.services.Registry.RefreshedAt(),
	})
}

func (s *Server) handleRefreshModels(c *gin.Context) {
	list, err := s.services.Registry.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"models":      list.Models,
		"activeModel": list.ActiveModel,
		"refreshedAt": s.services.Registry.RefreshedAt(),
	})
}

func (s *Server) handleModelVariables(c *gin.Context) {
	name := c.Param("model")
	model, err := s.services.Registry.Model(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"model":   model,
		"stale":   s.services.Registry.IsStale(name),
	})
}

func (s *Server) handleVariables(c *gin.Context) {
	if err := s.services.Catalog.Ensure(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"variables": s.services.Catalog.All(),
		"groups":    s.services.Catalog.Groups(),
	})
}
