package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/service"
)

type GroupHandler struct {
	groups service.IGroupService
}

func NewGroupHandler(groups service.IGroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// CreateGroup handles POST /groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	g, err := h.groups.CreateGroup(c.Request.Context(), req, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, g)
}

// ListGroups returns the caller's groups, most recently active first
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	groups, err := h.groups.GetUserGroups(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	respond(c, http.StatusOK, groups)
}

// GetGroup handles GET /groups/:id. Private groups are visible to their
// active participants only.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	g, err := h.groups.GetGroupByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if g.Type == model.GroupTypePrivate {
		if _, member := g.ActiveParticipant(userID); !member {
			respondError(c, fmt.Errorf("%w: %s may not view group %s", service.ErrPermissionDenied, userID, g.ID))
			return
		}
	}
	respond(c, http.StatusOK, g)
}

func (h *GroupHandler) UpdateInfo(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.GroupInfoPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.groups.UpdateGroupInfo(c.Request.Context(), c.Param("id"), req, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, g)
}

func (h *GroupHandler) UpdateSettings(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req model.SettingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.groups.UpdateGroupSettings(c.Request.Context(), c.Param("id"), req, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, g)
}

func (h *GroupHandler) Archive(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	g, err := h.groups.ArchiveGroup(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, g)
}

func (h *GroupHandler) Delete(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.groups.DeleteGroup(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

type pinRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

func (h *GroupHandler) Pin(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.groups.PinMessage(c.Request.Context(), c.Param("id"), req.MessageID, userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *GroupHandler) Unpin(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.groups.UnpinMessage(c.Request.Context(), c.Param("id"), c.Param("messageId"), userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

type announcementRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *GroupHandler) Announce(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req announcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.groups.CreateAnnouncement(c.Request.Context(), c.Param("id"), req.Content, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

func (h *GroupHandler) AuditTrail(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	entries, err := h.groups.GetAuditTrail(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	respond(c, http.StatusOK, entries)
}

func (h *GroupHandler) Analytics(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	stats, err := h.groups.GetGroupAnalytics(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}
