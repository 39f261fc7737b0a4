package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/models"
)

type toggleRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

/* users */

func listUsers(c *gin.Context) {
	var status *models.ApprovalStatus
	if raw := c.Query("approval_status"); raw != "" {
		s := models.ApprovalStatus(raw)
		status = &s
	}
	users, err := models.ListUsers(c.Request.Context(), status)
	if err != nil {
		respondError(c, "Access", "listUsers", err)
		return
	}
	respondData(c, users)
}

func getUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "getUser", err)
		return
	}
	respondData(c, user)
}

func createUser(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Access", "createUser", err)
		return
	}
	respondCreated(c, user)
}

func updateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.UpdateUser(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Access", "updateUser", err)
		return
	}
	respondData(c, user)
}

func toggleActiveUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req toggleRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := models.ToggleActiveUser(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, "Access", "toggleActiveUser", err)
		return
	}
	respondData(c, user)
}

func approveUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := models.ApproveUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "approveUser", err)
		return
	}
	respondData(c, user)
}

func rejectUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := models.RejectUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "rejectUser", err)
		return
	}
	respondData(c, user)
}

func deleteUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := models.DeleteUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "deleteUser", err)
		return
	}
	respondData(c, user)
}

/* roles */

func listRoles(c *gin.Context) {
	roles, err := models.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, "Access", "listRoles", err)
		return
	}
	respondData(c, roles)
}

func getRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, err := models.GetRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "getRole", err)
		return
	}
	respondData(c, role)
}

func createRole(c *gin.Context) {
	var input models.NewRole
	if !bindJSON(c, &input) {
		return
	}
	role, err := models.CreateRole(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Access", "createRole", err)
		return
	}
	respondCreated(c, role)
}

func updateRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewRole
	if !bindJSON(c, &input) {
		return
	}
	role, err := models.UpdateRole(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Access", "updateRole", err)
		return
	}
	respondData(c, role)
}

func deleteRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, err := models.DeleteRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "deleteRole", err)
		return
	}
	respondData(c, role)
}

/* service tokens */

func listServiceTokens(c *gin.Context) {
	tokens, err := models.ListServiceTokens(c.Request.Context())
	if err != nil {
		respondError(c, "Access", "listServiceTokens", err)
		return
	}
	respondData(c, tokens)
}

// issueServiceToken is the only response that carries the signed token.
func issueServiceToken(c *gin.Context) {
	var input models.NewServiceToken
	if !bindJSON(c, &input) {
		return
	}
	issued, err := models.IssueServiceToken(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Access", "issueServiceToken", err)
		return
	}
	respondCreated(c, issued)
}

func revokeServiceToken(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	token, err := models.RevokeServiceToken(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Access", "revokeServiceToken", err)
		return
	}
	respondData(c, token)
}
