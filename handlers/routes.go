// Package handlers is the JSON API served under /api.
package handlers

import (
	"github.com/gin-gonic/gin"
	mw "github.com/rentiq/rentiq_backend/middlewares"
	"github.com/rentiq/rentiq_backend/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("rentiq")

// Register mounts every API route on rg. Session, bearer and loader middlewares
// must already run on rg.
func Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/bootstrap", bootstrap)
	auth.POST("/register", register)
	auth.POST("/login", login)
	auth.POST("/logout", mw.RequireSession(), logout)
	auth.GET("/me", mw.RequireSession(), me)
	auth.POST("/change-password", mw.RequireSession(), changePassword)

	api := rg.Group("", mw.RequireUser())

	api.GET("/business", getBusiness)
	api.PUT("/business", mw.RequireAdmin(), updateBusiness)

	access := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModuleAccess, action) }
	api.GET("/users", access(models.ActionRead), listUsers)
	api.GET("/users/:id", access(models.ActionRead), getUser)
	api.POST("/users", access(models.ActionCreate), createUser)
	api.PUT("/users/:id", access(models.ActionUpdate), updateUser)
	api.PUT("/users/:id/active", access(models.ActionUpdate), toggleActiveUser)
	api.POST("/users/:id/approve", access(models.ActionUpdate), approveUser)
	api.POST("/users/:id/reject", access(models.ActionUpdate), rejectUser)
	api.DELETE("/users/:id", access(models.ActionDelete), deleteUser)
	api.GET("/roles", access(models.ActionRead), listRoles)
	api.GET("/roles/:id", access(models.ActionRead), getRole)
	api.POST("/roles", access(models.ActionCreate), createRole)
	api.PUT("/roles/:id", access(models.ActionUpdate), updateRole)
	api.DELETE("/roles/:id", access(models.ActionDelete), deleteRole)
	api.GET("/service-tokens", mw.RequireAdmin(), listServiceTokens)
	api.POST("/service-tokens", mw.RequireAdmin(), issueServiceToken)
	api.DELETE("/service-tokens/:id", mw.RequireAdmin(), revokeServiceToken)

	client := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModuleClient, action) }
	api.GET("/clients", client(models.ActionRead), listClients)
	api.GET("/clients/:id", client(models.ActionRead), getClient)
	api.POST("/clients", client(models.ActionCreate), createClient)
	api.PUT("/clients/:id", client(models.ActionUpdate), updateClient)
	api.PUT("/clients/:id/active", client(models.ActionUpdate), toggleActiveClient)
	api.DELETE("/clients/:id", client(models.ActionDelete), deleteClient)

	inventory := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModuleInventory, action) }
	api.GET("/inventory", inventory(models.ActionRead), listInventoryItems)
	api.GET("/inventory-categories", inventory(models.ActionRead), listInventoryCategories)
	api.GET("/inventory/:id", inventory(models.ActionRead), getInventoryItem)
	api.GET("/inventory/:id/movements", inventory(models.ActionRead), listStockMovements)
	api.POST("/inventory", inventory(models.ActionCreate), createInventoryItem)
	api.PUT("/inventory/:id", inventory(models.ActionUpdate), updateInventoryItem)
	api.PUT("/inventory/:id/active", inventory(models.ActionUpdate), toggleActiveInventoryItem)
	api.POST("/inventory/:id/adjust", inventory(models.ActionUpdate), adjustStock)
	api.DELETE("/inventory/:id", inventory(models.ActionDelete), deleteInventoryItem)
	api.POST("/inventory-reconcile", mw.RequireAdmin(), reconcileStock)

	challan := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModuleChallan, action) }
	api.GET("/challans", challan(models.ActionRead), listChallans)
	api.GET("/challans/:id", challan(models.ActionRead), getChallan)
	api.POST("/challans", challan(models.ActionCreate), createChallan)
	api.PUT("/challans/:id", challan(models.ActionUpdate), updateChallan)
	api.POST("/challans/:id/return", challan(models.ActionUpdate), returnChallanItems)
	api.POST("/challans/:id/cancel", challan(models.ActionDelete), cancelChallan)

	payment := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModulePayment, action) }
	api.GET("/payments", payment(models.ActionRead), listPayments)
	api.GET("/payments/:id", payment(models.ActionRead), getPayment)
	api.POST("/payments", payment(models.ActionCreate), createPayment)
	api.PUT("/payments/:id", payment(models.ActionUpdate), updatePayment)
	api.DELETE("/payments/:id", payment(models.ActionDelete), deletePayment)

	pettyCash := func(action string) gin.HandlerFunc { return mw.RequirePermission(models.ModulePettyCash, action) }
	api.GET("/pettycash", pettyCash(models.ActionRead), listPettyCash)
	api.GET("/pettycash/:date", pettyCash(models.ActionRead), getPettyCash)
	api.PUT("/pettycash/:date", pettyCash(models.ActionUpdate), savePettyCash)
	api.DELETE("/pettycash/:date", pettyCash(models.ActionDelete), deletePettyCash)

	reportRoutes(api.Group("/reports", mw.RequirePermission(models.ModuleReport, models.ActionRead)))

	imports := api.Group("/imports")
	imports.GET("", mw.RequirePermission(models.ModuleImport, models.ActionRead), listImportJobs)
	imports.GET("/:entity/template", mw.RequirePermission(models.ModuleImport, models.ActionRead), importTemplate)
	imports.POST("/:entity", mw.RequirePermission(models.ModuleImport, models.ActionCreate), importFile)

	api.POST("/uploads/sign", signUpload)
	api.POST("/uploads/complete", completeUpload)
	api.GET("/uploads/object", uploadObject)
	api.GET("/uploads/download-url", downloadURL)
	api.POST("/uploads/remove", removeFile)
	api.GET("/documents/:type/:id", listDocuments)
	api.GET("/histories/:type/:id", listHistories)

	api.GET("/outbox", mw.RequireAdmin(), outboxSummary)
	api.POST("/outbox/requeue", mw.RequireAdmin(), requeueDeadEvents)
}
