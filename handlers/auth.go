package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// bootstrap creates the first business and its admin. It only succeeds once.
func bootstrap(c *gin.Context) {
	var input models.NewBootstrap
	if !bindJSON(c, &input) {
		return
	}
	user, business, err := models.BootstrapAdmin(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Auth", "bootstrap", err)
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":      "Auth",
		"business_id": business.ID,
		"username":    user.Username,
	}).Info("admin bootstrapped")
	respondCreated(c, gin.H{"user": user, "business": business})
}

func register(c *gin.Context) {
	var input models.NewRegistration
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.RegisterUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Auth", "register", err)
		return
	}
	respondCreated(c, user)
}

func login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	info, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, "Auth", "login", err)
		return
	}
	respondData(c, info)
}

func logout(c *gin.Context) {
	if err := models.Logout(c.Request.Context()); err != nil {
		respondError(c, "Auth", "logout", err)
		return
	}
	respondData(c, true)
}

func me(c *gin.Context) {
	info, err := models.Me(c.Request.Context())
	if err != nil {
		respondError(c, "Auth", "me", err)
		return
	}
	respondData(c, info)
}

func changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
		respondError(c, "Auth", "changePassword", err)
		return
	}
	respondData(c, true)
}
