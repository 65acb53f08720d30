package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/service"
)

type InviteHandler struct {
	invites service.IInviteService
}

func NewInviteHandler(invites service.IInviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

func (h *InviteHandler) Create(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateInviteInput
	// an empty body means an unlimited, non-expiring link
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	link, err := h.invites.CreateInviteLink(c.Request.Context(), c.Param("id"), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, link)
}

func (h *InviteHandler) Revoke(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.invites.RevokeInviteLink(c.Request.Context(), c.Param("linkId"), userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

// Join redeems an invite code for the caller
func (h *InviteHandler) Join(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	g, err := h.invites.JoinViaInvite(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, g)
}
