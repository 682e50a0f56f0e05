package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/taminot_backend/middlewares"
	"bitbucket.org/mmdatafocus/taminot_backend/models"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func registerRoutes(r *gin.Engine) {
	r.POST("/login", loginHandler)
	r.POST("/logout", logoutHandler)

	r.GET("/users", adminOnly(listUsersHandler))
	r.POST("/users", adminOnly(createUserHandler))
	r.PUT("/users/:id", adminOnly(updateUserHandler))
	r.DELETE("/users/:id", adminOnly(deleteUserHandler))

	r.GET("/products", sessionOnly(listProductsHandler))
	r.POST("/products", adminOnly(createProductHandler))
	r.PUT("/products/:id", adminOnly(updateProductHandler))
	r.DELETE("/products/:id", adminOnly(deleteProductHandler))

	r.GET("/requisitions", sessionOnly(listRequisitionsHandler))
	r.POST("/requisitions", sessionOnly(createRequisitionHandler))
	r.PUT("/requisitions/:id", sessionOnly(updateRequisitionHandler))
	r.DELETE("/requisitions/:id", sessionOnly(deleteRequisitionHandler))
	r.PUT("/requisitions/:id/status", adminOnly(updateRequisitionStatusHandler))
	r.GET("/requisitions/:id/history", adminOnly(requisitionHistoryHandler))

	r.POST("/stock/intake", adminOnly(centralIntakeHandler))
	r.POST("/stock/consumption", sessionOnly(consumptionHandler))
	r.GET("/stock/transactions", sessionOnly(stockTransactionsHandler))
	r.GET("/stock/balances", sessionOnly(stockBalancesHandler))

	r.GET("/reports/requisitions.xlsx", adminOnly(requisitionReportHandler))

	r.GET("/settings/telegram", adminOnly(getTelegramConfigHandler))
	r.PUT("/settings/telegram", adminOnly(saveTelegramConfigHandler))
	r.POST("/settings/telegram/test", adminOnly(testTelegramHandler))

	r.GET("/settings/backup", adminOnly(getBackupConfigHandler))
	r.PUT("/settings/backup", adminOnly(saveBackupConfigHandler))
	r.POST("/backup", adminOnly(backupHandler))
	r.POST("/restore", adminOnly(restoreHandler))
}

// respondError translates domain errors onto http statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case utils.IsServiceUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "correlation_id": cid})
	}
}

func respondBindingError(c *gin.Context, err error) {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func sessionOnly(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h(c)
	}
}

func adminOnly(h gin.HandlerFunc) gin.HandlerFunc {
	return sessionOnly(func(c *gin.Context) {
		if !utils.GetIsAdminFromContext(c.Request.Context()) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		h(c)
	})
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// callerOrgScope returns the ledger scope the caller may read or write.
// The administrator may address any scope via the org_id query parameter.
func callerOrgScope(c *gin.Context) string {
	ctx := c.Request.Context()
	if utils.GetIsAdminFromContext(ctx) {
		if orgId := c.Query("org_id"); orgId != "" {
			return orgId
		}
		return models.CentralOrgId
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	return strconv.Itoa(userId)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	info, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		// Do not leak whether the username exists.
		if utils.IsNotFound(err) || utils.IsInvalidInput(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong username or password"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func logoutHandler(c *gin.Context) {
	ok, err := models.Logout(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

func listUsersHandler(c *gin.Context) {
	users, err := models.GetUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func updateUserHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	user, err := models.UpdateUser(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func deleteUserHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	user, err := models.DeleteUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func listProductsHandler(c *gin.Context) {
	products, err := models.GetProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func updateProductHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.UpdateProduct(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func deleteProductHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	product, err := models.DeleteProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func listRequisitionsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	orgId := ""
	if utils.GetIsAdminFromContext(ctx) {
		orgId = c.Query("org_id")
	} else {
		userId, _ := utils.GetUserIdFromContext(ctx)
		orgId = strconv.Itoa(userId)
	}

	var status *models.RequisitionStatus
	if s := c.Query("status"); s != "" {
		parsed := models.RequisitionStatus(s)
		if !parsed.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = &parsed
	}

	requisitions, err := models.GetRequisitions(ctx, orgId, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisitions)
}

func createRequisitionHandler(c *gin.Context) {
	var input models.NewRequisition
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	requisition, err := models.CreateRequisition(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requisition)
}

// mayTouchRequisition allows the administrator everywhere and an
// organization only on its own rows.
func mayTouchRequisition(c *gin.Context, id int) bool {
	ctx := c.Request.Context()
	if utils.GetIsAdminFromContext(ctx) {
		return true
	}
	requisition, err := models.GetRequisition(ctx, id)
	if err != nil {
		respondError(c, err)
		return false
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if requisition.OrgId != strconv.Itoa(userId) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func updateRequisitionHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if !mayTouchRequisition(c, id) {
		return
	}
	var input models.NewRequisition
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	requisition, err := models.UpdateRequisition(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

func deleteRequisitionHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if !mayTouchRequisition(c, id) {
		return
	}
	requisition, err := models.DeleteRequisition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

func updateRequisitionStatusHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.StatusUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "UpdateRequisitionStatus")
	defer span.End()

	requisition, err := models.UpdateRequisitionStatus(ctx, id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisition)
}

func requisitionHistoryHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	histories, err := models.GetHistories(c.Request.Context(), "requisitions", id)
	if err != nil {
		respondError(c, err)
		return
	}

	// Enrich audit rows with the acting user via the batched loader.
	type historyEntry struct {
		*models.History
		User *models.User `json:"user"`
	}
	entries := make([]historyEntry, 0, len(histories))
	for _, h := range histories {
		user, err := middlewares.GetUser(c.Request.Context(), h.UserId)
		if err != nil {
			respondError(c, err)
			return
		}
		entries = append(entries, historyEntry{History: h, User: user})
	}
	c.JSON(http.StatusOK, entries)
}

func centralIntakeHandler(c *gin.Context) {
	var input models.NewStockEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	txn, err := models.RecordCentralIntake(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func consumptionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if utils.GetIsAdminFromContext(ctx) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the central warehouse records intake, not consumption"})
		return
	}
	var input models.NewStockEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	txn, err := models.RecordConsumption(ctx, strconv.Itoa(userId), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func stockTransactionsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	// The administrator can pull the full ledger for export views.
	if utils.GetIsAdminFromContext(ctx) && c.Query("org_id") == "all" {
		txns, err := models.GetAllStockTransactions(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, txns)
		return
	}

	txns, err := models.GetStockTransactions(ctx, callerOrgScope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

type balanceEntry struct {
	Key     string          `json:"key"`
	Qty     int64           `json:"qty"`
	Product *models.Product `json:"product"`
	Variant string          `json:"variant"`
}

func stockBalancesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	orgId := callerOrgScope(c)

	balances, err := models.OrgBalances(ctx, orgId)
	if err != nil {
		respondError(c, err)
		return
	}

	entries := make([]balanceEntry, 0, len(balances))
	for key, qty := range balances {
		productId, variant, err := models.ParseBalanceKey(key)
		if err != nil {
			respondError(c, err)
			return
		}
		product, err := middlewares.GetProduct(ctx, productId)
		if err != nil {
			respondError(c, err)
			return
		}
		entries = append(entries, balanceEntry{Key: key, Qty: qty, Product: product, Variant: variant})
	}
	c.JSON(http.StatusOK, gin.H{"org_id": orgId, "balances": entries})
}

func requisitionReportHandler(c *gin.Context) {
	var input models.RequisitionReportInput
	if err := c.ShouldBindQuery(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	f, err := models.ExportRequisitionsExcel(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=requisitions.xlsx")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func getTelegramConfigHandler(c *gin.Context) {
	cfg, err := models.GetTelegramConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func saveTelegramConfigHandler(c *gin.Context) {
	var input models.TelegramConfig
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	if err := models.SaveTelegramConfig(c.Request.Context(), &input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, input)
}

func testTelegramHandler(c *gin.Context) {
	var input models.TelegramConfig
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	if err := models.SendTestMessage(c.Request.Context(), &input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func getBackupConfigHandler(c *gin.Context) {
	cfg, err := models.GetBackupConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func saveBackupConfigHandler(c *gin.Context) {
	var input models.BackupConfig
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	if err := models.SaveBackupConfig(c.Request.Context(), &input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, input)
}

func backupHandler(c *gin.Context) {
	cfg, err := models.BackupToStorage(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": cfg.Bucket, "object": cfg.Object})
}

func restoreHandler(c *gin.Context) {
	snapshot, err := models.RestoreFromStorage(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":   snapshot.Version,
		"users":     len(snapshot.Users),
		"products":  len(snapshot.Products),
		"requests":  len(snapshot.Requests),
		"stock":     len(snapshot.Stock),
		"backed_at": snapshot.CreatedAt,
	})
}
