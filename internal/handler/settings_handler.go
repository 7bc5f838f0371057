package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"helpdesk-autoreply/internal/repository"
)

// GetSettings returns the effective settings and the stored rows
func (h *Handlers) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()

	effective, err := h.repo.LoadSettings(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	stored, err := h.repo.ListSettings(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": effective,
		"stored":   stored,
	})
}

// GetSetting returns a single stored setting
func (h *Handlers) GetSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.repo.GetSetting(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": value,
	})
}

// UpdateSettings applies several settings given as a key/value object
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Body must be an object of string values")
		return
	}

	// validate everything before writing anything
	for key, value := range req {
		if err := repository.ValidateSetting(key, value); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	for key, value := range req {
		if err := h.repo.SetSetting(c.Request.Context(), key, value); err != nil {
			respondError(c, err)
			return
		}
	}

	h.GetSettings(c)
}

// UpdateSetting sets a single setting
func (h *Handlers) UpdateSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	key := c.Param("key")
	if err := repository.ValidateSetting(key, req.Value); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.repo.SetSetting(c.Request.Context(), key, req.Value); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": req.Value,
	})
}
