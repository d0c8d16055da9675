package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/xuri/excelize/v2"
)

var poExportHeaders = []string{
	"订单编号", "供应商", "状态", "下单日期", "预计到货",
	"小计", "税额", "总金额", "创建人", "创建时间",
}

var poStatusLabels = map[string]string{
	"draft":            "草稿",
	"pending_approval": "待审批",
	"approved":         "已审批",
	"sent":             "已发送",
	"partial":          "部分收货",
	"received":         "已收货",
	"on_hold":          "暂停",
	"cancelled":        "已取消",
}

// ExportService 采购订单Excel导出
type ExportService struct {
	poRepo *repository.PORepository
}

func NewExportService(poRepo *repository.PORepository) *ExportService {
	return &ExportService{poRepo: poRepo}
}

// ExportPOs 导出采购订单列表（按当前筛选条件，不分页）
func (s *ExportService) ExportPOs(ctx context.Context, params repository.POListParams) (*excelize.File, string, error) {
	params.Page = 1
	params.Limit = 10000
	orders, _, err := s.poRepo.FindAll(ctx, params)
	if err != nil {
		return nil, "", fmt.Errorf("查询采购订单失败: %w", err)
	}

	f := excelize.NewFile()
	sheet := "采购订单"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	// 写入表头
	for i, h := range poExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	// 写入数据行
	var totalAmount float64
	for rowIdx, po := range orders {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), po.PONumber)
		if po.Supplier != nil {
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), po.Supplier.Name)
		}
		label := poStatusLabels[po.Status]
		if label == "" {
			label = po.Status
		}
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), label)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), po.OrderDate.Format("2006-01-02"))
		if po.ExpectedDate != nil {
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), po.ExpectedDate.Format("2006-01-02"))
		}
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), po.Subtotal)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), po.TaxAmount)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), po.TotalAmount)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), po.CreatedBy)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), po.CreatedAt.Format("2006-01-02 15:04"))
		totalAmount += po.TotalAmount
	}

	// 底部汇总行
	sumRow := len(orders) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", sumRow), "合计")
	f.SetCellValue(sheet, fmt.Sprintf("H%d", sumRow), totalAmount)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", sumRow), fmt.Sprintf("A%d", sumRow), boldStyle)

	f.SetColWidth(sheet, "A", "A", 18)
	f.SetColWidth(sheet, "B", "B", 24)
	f.SetColWidth(sheet, "D", "E", 12)
	f.SetColWidth(sheet, "J", "J", 18)

	filename := fmt.Sprintf("purchase_orders_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}
