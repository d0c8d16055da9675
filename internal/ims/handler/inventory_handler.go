package handler

import (
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/bitfantasy/nimo-ims/internal/ims/service"
	"github.com/gin-gonic/gin"
)

// InventoryHandler 库存处理器
type InventoryHandler struct {
	svc *service.InventoryService
}

func NewInventoryHandler(svc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// List GET /inventory
func (h *InventoryHandler) List(c *gin.Context) {
	page, limit := GetPagination(c)
	params := repository.InventoryListParams{
		ProductID: c.Query("product_id"),
		LowStock:  c.Query("low_stock") == "true",
		Page:      page,
		Limit:     limit,
	}
	rows, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		InternalError(c, "获取库存列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: rows, Pagination: NewPagination(page, limit, total)})
}

// Get GET /inventory/:productId
func (h *InventoryHandler) Get(c *gin.Context) {
	inv, err := h.svc.GetByProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inv)
}

// ListTransactions GET /inventory/:productId/transactions
func (h *InventoryHandler) ListTransactions(c *gin.Context) {
	page, limit := GetPagination(c)
	rows, total, err := h.svc.ListTransactions(c.Request.Context(), c.Param("productId"), page, limit)
	if err != nil {
		InternalError(c, "获取库存流水失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: rows, Pagination: NewPagination(page, limit, total)})
}

// Adjust POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	inv, err := h.svc.Adjust(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inv)
}

// Count POST /inventory/count
func (h *InventoryHandler) Count(c *gin.Context) {
	var req service.CountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	inv, err := h.svc.Count(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, inv)
}
