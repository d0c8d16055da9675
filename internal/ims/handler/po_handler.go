package handler

import (
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/bitfantasy/nimo-ims/internal/ims/service"
	"github.com/gin-gonic/gin"
)

// POHandler 采购订单处理器
type POHandler struct {
	svc        *service.ProcurementService
	statsSvc   *service.StatsService
	exportSvc  *service.ExportService
	attachment *service.AttachmentService
}

func NewPOHandler(svc *service.ProcurementService, statsSvc *service.StatsService, exportSvc *service.ExportService, attachment *service.AttachmentService) *POHandler {
	return &POHandler{svc: svc, statsSvc: statsSvc, exportSvc: exportSvc, attachment: attachment}
}

func poListParams(c *gin.Context) repository.POListParams {
	page, limit := GetPagination(c)
	params := repository.POListParams{
		Status:     c.Query("status"),
		SupplierID: c.Query("supplier_id"),
		Search:     c.Query("search"),
		Page:       page,
		Limit:      limit,
	}
	if v := c.Query("date_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			params.DateFrom = &t
		}
	}
	if v := c.Query("date_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			params.DateTo = &t
		}
	}
	return params
}

// List GET /purchase-orders
func (h *POHandler) List(c *gin.Context) {
	params := poListParams(c)
	orders, total, err := h.svc.ListPOs(c.Request.Context(), params)
	if err != nil {
		InternalError(c, "获取采购订单列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: orders, Pagination: NewPagination(params.Page, params.Limit, total)})
}

// Get GET /purchase-orders/:id
func (h *POHandler) Get(c *gin.Context) {
	po, err := h.svc.GetPO(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Stats GET /purchase-orders/stats
func (h *POHandler) Stats(c *gin.Context) {
	stats, err := h.statsSvc.GetPOStats(c.Request.Context())
	if err != nil {
		InternalError(c, "获取统计失败: "+err.Error())
		return
	}
	Success(c, stats)
}

// Export GET /purchase-orders/export
func (h *POHandler) Export(c *gin.Context) {
	f, filename, err := h.exportSvc.ExportPOs(c.Request.Context(), poListParams(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// Create POST /purchase-orders
func (h *POHandler) Create(c *gin.Context) {
	var req service.CreatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.CreatePO(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, po)
}

// Update PUT /purchase-orders/:id
func (h *POHandler) Update(c *gin.Context) {
	var req service.UpdatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.UpdatePO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Submit POST /purchase-orders/:id/submit
func (h *POHandler) Submit(c *gin.Context) {
	po, err := h.svc.SubmitPO(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Approve POST /purchase-orders/:id/approve
func (h *POHandler) Approve(c *gin.Context) {
	var req service.ApprovePORequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.ApprovePO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Send POST /purchase-orders/:id/send
func (h *POHandler) Send(c *gin.Context) {
	var req service.SendPORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.SendPO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Receive POST /purchase-orders/:id/receive
func (h *POHandler) Receive(c *gin.Context) {
	var req service.ReceivePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.ReceivePO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Hold POST /purchase-orders/:id/hold
func (h *POHandler) Hold(c *gin.Context) {
	var req service.HoldPORequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.HoldPO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// Cancel POST /purchase-orders/:id/cancel
func (h *POHandler) Cancel(c *gin.Context) {
	var req service.CancelPORequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.CancelPO(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// FileReceipt POST /purchase-orders/:id/file-receipt
func (h *POHandler) FileReceipt(c *gin.Context) {
	po, err := h.svc.FileReceipt(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, po)
}

// ListReceipts GET /purchase-orders/:id/receipts
func (h *POHandler) ListReceipts(c *gin.Context) {
	receipts, err := h.svc.ListReceipts(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": receipts})
}

// UploadAttachment POST /purchase-orders/:id/receipts/:receiptId/attachment
func (h *POHandler) UploadAttachment(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传附件文件")
		return
	}
	defer file.Close()

	receipt, err := h.attachment.Upload(c.Request.Context(), c.Param("receiptId"),
		file, header.Filename, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, receipt)
}

// DownloadAttachment GET /purchase-orders/:id/receipts/:receiptId/attachment
func (h *POHandler) DownloadAttachment(c *gin.Context) {
	object, receipt, err := h.attachment.Download(c.Request.Context(), c.Param("receiptId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer object.Close()

	contentType := receipt.AttachmentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+receipt.AttachmentName+"\"")
	c.DataFromReader(200, receipt.AttachmentSize, contentType, object, nil)
}
