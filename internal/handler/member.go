package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/service"
)

type MemberHandler struct {
	members service.IMemberService
}

func NewMemberHandler(members service.IMemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

type addMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *MemberHandler) Add(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.members.AddMember(c.Request.Context(), c.Param("id"), req.UserID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, p)
}

func (h *MemberHandler) Remove(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.members.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId"), userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

// Leave removes the caller from the group
func (h *MemberHandler) Leave(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.members.LeaveGroup(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *MemberHandler) Promote(c *gin.Context) {
	h.setRole(c, h.members.PromoteToAdmin)
}

func (h *MemberHandler) Demote(c *gin.Context) {
	h.setRole(c, h.members.DemoteFromAdmin)
}

func (h *MemberHandler) setRole(c *gin.Context, change func(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error)) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	p, err := change(c.Request.Context(), c.Param("id"), c.Param("userId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *MemberHandler) SetTitle(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.members.SetCustomTitle(c.Request.Context(), c.Param("id"), c.Param("userId"), req.Title, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

// Activity records that the caller was seen in the group
func (h *MemberHandler) Activity(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.members.RecordActivity(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
