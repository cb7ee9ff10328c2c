package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
	toolx "github.com/nexusbot/nexus-relay/engine/tool"
)

// GlobalConfig is the admin-editable configuration file.
type GlobalConfig struct {
	DefaultSystemInstruction string `json:"default_system_instruction"`
	GeminiModel              string `json:"gemini_model"`
	MaxHistoryTurns          int    `json:"max_history_turns"`
}

/* ------------------------------ sessions ------------------------------ */

func (s *Server) listSessions(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unknown platform"})
		return
	}

	ids, err := s.store.List(c.Request.Context(), platform)
	if err != nil {
		log.Error().Err(err).Msg("session listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list sessions"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ids)
}

func (s *Server) getSession(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unknown platform"})
		return
	}
	senderID := c.Param("senderId")

	sess, err := s.store.Load(c.Request.Context(), platform, senderID)
	if errors.Is(err, contractx.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found for senderId: " + senderID})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sender", senderID).Msg("session fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not load the session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) setInstruction(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unknown platform"})
		return
	}
	senderID := c.Param("senderId")

	var body struct {
		NewInstruction *string `json:"newInstruction"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.NewInstruction == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": `the "newInstruction" property is required`})
		return
	}

	if !s.bot.SetInstruction(c.Request.Context(), platform, senderID, *body.NewInstruction) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not update the instruction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "instruction updated"})
}

/* ------------------------------- config ------------------------------- */

func (s *Server) getConfig(c *gin.Context) {
	data, err := os.ReadFile(s.cfg.ConfigPath)
	if err != nil {
		log.Error().Err(err).Msg("config read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the configuration"})
		return
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "configuration file is corrupt"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) saveConfig(c *gin.Context) {
	var cfg GlobalConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the configuration"})
		return
	}
	if err := os.WriteFile(s.cfg.ConfigPath, data, 0o644); err != nil {
		log.Error().Err(err).Msg("config write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the configuration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "configuration saved"})
}

/* ------------------------------ products ------------------------------ */

func (s *Server) catalogPath(c *gin.Context) (string, bool) {
	profile := s.tenants.Default()
	if id := c.Query("tenant"); id != "" {
		p, ok := s.tenants.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "unknown tenant: " + id})
			return "", false
		}
		profile = p
	}

	path, err := toolx.ResolveUnderRoot(s.cfg.DataRoot, profile.KnowledgeBasePath)
	if err != nil {
		log.Error().Err(err).Str("tenant", profile.ID).Msg("catalog path rejected")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "catalog is not available for this tenant"})
		return "", false
	}
	return path, true
}

func (s *Server) listProducts(c *gin.Context) {
	path, ok := s.catalogPath(c)
	if !ok {
		return
	}
	items, err := toolx.LoadCatalog(path)
	if err != nil {
		log.Error().Err(err).Msg("catalog read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the products"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) addProduct(c *gin.Context) {
	path, ok := s.catalogPath(c)
	if !ok {
		return
	}

	var item toolx.CatalogItem
	if err := c.ShouldBindJSON(&item); err != nil || item.Name == "" || item.Price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": `at least "name" and "price" are required`})
		return
	}

	items, err := toolx.LoadCatalog(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the products"})
		return
	}

	item.ID = "prod_" + uuid.NewString()
	items = append(items, item)
	if err := toolx.SaveCatalog(path, items); err != nil {
		log.Error().Err(err).Msg("catalog write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not add the product"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "product added", "product": item})
}

func (s *Server) updateProduct(c *gin.Context) {
	path, ok := s.catalogPath(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var patch toolx.CatalogItem
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	items, err := toolx.LoadCatalog(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the products"})
		return
	}

	for i := range items {
		if items[i].ID != id {
			continue
		}
		if patch.Name != "" {
			items[i].Name = patch.Name
		}
		if patch.Price != 0 {
			items[i].Price = patch.Price
		}
		if patch.Description != "" {
			items[i].Description = patch.Description
		}
		if err := toolx.SaveCatalog(path, items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not update the product"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "product updated", "product": items[i]})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
}

func (s *Server) deleteProduct(c *gin.Context) {
	path, ok := s.catalogPath(c)
	if !ok {
		return
	}
	id := c.Param("id")

	items, err := toolx.LoadCatalog(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the products"})
		return
	}

	remaining := items[:0:0]
	for _, item := range items {
		if item.ID != id {
			remaining = append(remaining, item)
		}
	}
	if len(remaining) == len(items) {
		c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
		return
	}
	if err := toolx.SaveCatalog(path, remaining); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not delete the product"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}
