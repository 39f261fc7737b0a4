package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/models"
)

/* business */

func getBusiness(c *gin.Context) {
	business, err := models.GetBusiness(c.Request.Context())
	if err != nil {
		respondError(c, "Business", "getBusiness", err)
		return
	}
	respondData(c, business)
}

func updateBusiness(c *gin.Context) {
	var input models.NewBusiness
	if !bindJSON(c, &input) {
		return
	}
	business, err := models.UpdateBusiness(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Business", "updateBusiness", err)
		return
	}
	respondData(c, business)
}

/* clients */

func listClients(c *gin.Context) {
	page, err := models.ListClients(c.Request.Context(), models.ClientFilter{
		Search:   c.Query("search"),
		IsActive: queryBoolPtr(c, "is_active"),
		Limit:    queryInt(c, "limit", 0),
		After:    c.Query("after"),
	})
	if err != nil {
		respondError(c, "Client", "listClients", err)
		return
	}
	respondData(c, page)
}

func getClient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	client, err := models.GetClient(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Client", "getClient", err)
		return
	}
	respondData(c, client)
}

func createClient(c *gin.Context) {
	var input models.NewClient
	if !bindJSON(c, &input) {
		return
	}
	client, err := models.CreateClient(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Client", "createClient", err)
		return
	}
	respondCreated(c, client)
}

func updateClient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewClient
	if !bindJSON(c, &input) {
		return
	}
	client, err := models.UpdateClient(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Client", "updateClient", err)
		return
	}
	respondData(c, client)
}

func toggleActiveClient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req toggleRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := models.ToggleActiveClient(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, "Client", "toggleActiveClient", err)
		return
	}
	respondData(c, client)
}

func deleteClient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	client, err := models.DeleteClient(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Client", "deleteClient", err)
		return
	}
	respondData(c, client)
}

/* inventory */

type adjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func listInventoryItems(c *gin.Context) {
	page, err := models.ListInventoryItems(c.Request.Context(), models.InventoryFilter{
		Search:       c.Query("search"),
		Category:     c.Query("category"),
		LowStockOnly: queryBool(c, "low_stock"),
		IsActive:     queryBoolPtr(c, "is_active"),
		Limit:        queryInt(c, "limit", 0),
		After:        c.Query("after"),
	})
	if err != nil {
		respondError(c, "Inventory", "listInventoryItems", err)
		return
	}
	respondData(c, page)
}

func listInventoryCategories(c *gin.Context) {
	categories, err := models.ListInventoryCategories(c.Request.Context())
	if err != nil {
		respondError(c, "Inventory", "listInventoryCategories", err)
		return
	}
	respondData(c, categories)
}

func getInventoryItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := models.GetInventoryItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Inventory", "getInventoryItem", err)
		return
	}
	respondData(c, item)
}

func createInventoryItem(c *gin.Context) {
	var input models.NewInventoryItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.CreateInventoryItem(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Inventory", "createInventoryItem", err)
		return
	}
	respondCreated(c, item)
}

func updateInventoryItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewInventoryItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.UpdateInventoryItem(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Inventory", "updateInventoryItem", err)
		return
	}
	respondData(c, item)
}

func toggleActiveInventoryItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req toggleRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := models.ToggleActiveInventoryItem(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, "Inventory", "toggleActiveInventoryItem", err)
		return
	}
	respondData(c, item)
}

func deleteInventoryItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := models.DeleteInventoryItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Inventory", "deleteInventoryItem", err)
		return
	}
	respondData(c, item)
}

func adjustStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req adjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := models.AdjustStock(c.Request.Context(), id, req.Delta, req.Reason)
	if err != nil {
		respondError(c, "Inventory", "adjustStock", err)
		return
	}
	respondData(c, item)
}

// reconcileStock compares item counters with the movement ledger; ?fix=true
// rewrites drifted counters.
func reconcileStock(c *gin.Context) {
	drift, err := models.ReconcileStock(c.Request.Context(), queryBool(c, "fix"))
	if err != nil {
		respondError(c, "Inventory", "reconcileStock", err)
		return
	}
	if drift == nil {
		drift = []*models.StockDrift{}
	}
	respondData(c, drift)
}

func listStockMovements(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	movements, err := models.ListStockMovements(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Inventory", "listStockMovements", err)
		return
	}
	respondData(c, movements)
}
