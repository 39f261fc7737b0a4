package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/middlewares"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
)

// challanView is a challan with its client and the items its lines refer to.
type challanView struct {
	*models.Challan
	Client *models.Client                `json:"client"`
	Items  map[int]*models.InventoryItem `json:"items"`
}

type paymentView struct {
	*models.Payment
	Client *models.Client `json:"client"`
}

type listResponse[T any] struct {
	Items    []T             `json:"items"`
	PageInfo models.PageInfo `json:"page_info"`
}

// optional drops not-found lookups; a deleted client still lets its rows render.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, nil
	}
	return v, err
}

// challanViews resolves clients and items through the request's dataloaders,
// so a page of challans costs one query per entity.
func challanViews(ctx context.Context, challans []*models.Challan) ([]*challanView, error) {
	clientIds := make([]int, len(challans))
	var itemIds []int
	for i, ch := range challans {
		clientIds[i] = ch.ClientId
		for _, d := range ch.Details {
			itemIds = append(itemIds, d.ItemId)
		}
	}
	clients, clientErrs := middlewares.GetClients(ctx, clientIds)
	items, itemErrs := middlewares.GetInventoryItems(ctx, itemIds)
	byId := make(map[int]*models.InventoryItem, len(items))
	for i, item := range items {
		v, err := optional(item, errAt(itemErrs, i))
		if err != nil {
			return nil, err
		}
		if v != nil {
			byId[v.ID] = v
		}
	}

	views := make([]*challanView, len(challans))
	for i, ch := range challans {
		client, err := optional(clients[i], errAt(clientErrs, i))
		if err != nil {
			return nil, err
		}
		view := &challanView{Challan: ch, Client: client, Items: map[int]*models.InventoryItem{}}
		for _, d := range ch.Details {
			if item, ok := byId[d.ItemId]; ok {
				view.Items[d.ItemId] = item
			}
		}
		views[i] = view
	}
	return views, nil
}

func paymentViews(ctx context.Context, payments []*models.Payment) ([]*paymentView, error) {
	ids := make([]int, len(payments))
	for i, p := range payments {
		ids[i] = p.ClientId
	}
	clients, errs := middlewares.GetClients(ctx, ids)
	views := make([]*paymentView, len(payments))
	for i, p := range payments {
		client, err := optional(clients[i], errAt(errs, i))
		if err != nil {
			return nil, err
		}
		views[i] = &paymentView{Payment: p, Client: client}
	}
	return views, nil
}

// errAt indexes a LoadMany error slice, which may be nil when all loads succeed.
func errAt(errs []error, i int) error {
	if i < len(errs) {
		return errs[i]
	}
	return nil
}

func respondChallan(c *gin.Context, function string, status int, challan *models.Challan) {
	views, err := challanViews(c.Request.Context(), []*models.Challan{challan})
	if err != nil {
		respondError(c, "Challan", function, err)
		return
	}
	c.JSON(status, gin.H{"data": views[0]})
}

/* challans */

type cancelChallanRequest struct {
	Reason string `json:"reason"`
}

func listChallans(c *gin.Context) {
	dateRange, ok := queryRange(c)
	if !ok {
		return
	}
	filter := models.ChallanFilter{
		ClientId:    queryInt(c, "client_id", 0),
		DateRange:   dateRange,
		OverdueOnly: queryBool(c, "overdue"),
		Search:      c.Query("search"),
		Limit:       queryInt(c, "limit", 0),
		After:       c.Query("after"),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseChallanStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Status = &status
	}
	page, err := models.ListChallans(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Challan", "listChallans", err)
		return
	}
	views, err := challanViews(c.Request.Context(), page.Items)
	if err != nil {
		respondError(c, "Challan", "listChallans", err)
		return
	}
	respondData(c, listResponse[*challanView]{Items: views, PageInfo: page.PageInfo})
}

func getChallan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	challan, err := models.GetChallan(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Challan", "getChallan", err)
		return
	}
	respondChallan(c, "getChallan", http.StatusOK, challan)
}

func createChallan(c *gin.Context) {
	var input models.NewChallan
	if !bindJSON(c, &input) {
		return
	}
	challan, err := models.CreateChallan(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Challan", "createChallan", err)
		return
	}
	respondChallan(c, "createChallan", http.StatusCreated, challan)
}

func updateChallan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewChallan
	if !bindJSON(c, &input) {
		return
	}
	challan, err := models.UpdateChallan(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Challan", "updateChallan", err)
		return
	}
	respondChallan(c, "updateChallan", http.StatusOK, challan)
}

func returnChallanItems(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewChallanReturn
	if !bindJSON(c, &input) {
		return
	}
	challan, err := models.ReturnChallanItems(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Challan", "returnChallanItems", err)
		return
	}
	respondChallan(c, "returnChallanItems", http.StatusOK, challan)
}

func cancelChallan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelChallanRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	challan, err := models.CancelChallan(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, "Challan", "cancelChallan", err)
		return
	}
	respondChallan(c, "cancelChallan", http.StatusOK, challan)
}

/* payments */

func listPayments(c *gin.Context) {
	dateRange, ok := queryRange(c)
	if !ok {
		return
	}
	filter := models.PaymentFilter{
		ClientId:  queryInt(c, "client_id", 0),
		DateRange: dateRange,
		Limit:     queryInt(c, "limit", 0),
		After:     c.Query("after"),
	}
	if raw := c.Query("mode"); raw != "" {
		mode, err := models.ParsePaymentMode(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Mode = &mode
	}
	page, err := models.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Payment", "listPayments", err)
		return
	}
	views, err := paymentViews(c.Request.Context(), page.Items)
	if err != nil {
		respondError(c, "Payment", "listPayments", err)
		return
	}
	respondData(c, listResponse[*paymentView]{Items: views, PageInfo: page.PageInfo})
}

func respondPayment(c *gin.Context, function string, status int, payment *models.Payment) {
	views, err := paymentViews(c.Request.Context(), []*models.Payment{payment})
	if err != nil {
		respondError(c, "Payment", function, err)
		return
	}
	c.JSON(status, gin.H{"data": views[0]})
}

func getPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := models.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Payment", "getPayment", err)
		return
	}
	respondPayment(c, "getPayment", http.StatusOK, payment)
}

func createPayment(c *gin.Context) {
	var input models.NewPayment
	if !bindJSON(c, &input) {
		return
	}
	payment, err := models.CreatePayment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "Payment", "createPayment", err)
		return
	}
	respondPayment(c, "createPayment", http.StatusCreated, payment)
}

func updatePayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input models.NewPayment
	if !bindJSON(c, &input) {
		return
	}
	payment, err := models.UpdatePayment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Payment", "updatePayment", err)
		return
	}
	respondPayment(c, "updatePayment", http.StatusOK, payment)
}

func deletePayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := models.DeletePayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Payment", "deletePayment", err)
		return
	}
	respondData(c, payment)
}

/* petty cash */

func listPettyCash(c *gin.Context) {
	dateRange, ok := queryRange(c)
	if !ok {
		return
	}
	records, err := models.ListPettyCash(c.Request.Context(), dateRange)
	if err != nil {
		respondError(c, "PettyCash", "listPettyCash", err)
		return
	}
	respondData(c, records)
}

func getPettyCash(c *gin.Context) {
	date, ok := pathDate(c, "date")
	if !ok {
		return
	}
	record, err := models.GetPettyCash(c.Request.Context(), date)
	if err != nil {
		respondError(c, "PettyCash", "getPettyCash", err)
		return
	}
	respondData(c, record)
}

// savePettyCash upserts the record of one day and rechains the later days.
func savePettyCash(c *gin.Context) {
	date, ok := pathDate(c, "date")
	if !ok {
		return
	}
	var input models.NewPettyCash
	if !bindJSON(c, &input) {
		return
	}
	record, err := models.SavePettyCash(c.Request.Context(), date, &input)
	if err != nil {
		respondError(c, "PettyCash", "savePettyCash", err)
		return
	}
	respondData(c, record)
}

func deletePettyCash(c *gin.Context) {
	date, ok := pathDate(c, "date")
	if !ok {
		return
	}
	record, err := models.DeletePettyCash(c.Request.Context(), date)
	if err != nil {
		respondError(c, "PettyCash", "deletePettyCash", err)
		return
	}
	respondData(c, record)
}
