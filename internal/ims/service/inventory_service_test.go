package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/bitfantasy/nimo-ims/internal/ims/testutil"
	"gorm.io/gorm"
)

func setupInventoryTest(t *testing.T) (*InventoryService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewInventoryService(db, repos.Inventory, repos.Product)
	testutil.SeedProduct(t, db, "prod-001", "USB-C接口")
	return svc, db
}

func TestAdjustSignedQuantity(t *testing.T) {
	svc, db := setupInventoryTest(t)
	ctx := context.Background()

	inv, err := svc.Adjust(ctx, "user-001", &AdjustRequest{
		ProductID: "prod-001",
		Quantity:  12,
		Reason:    "期初录入",
	})
	if err != nil {
		t.Fatalf("positive adjust failed: %v", err)
	}
	if inv.QuantityOnHand != 12 {
		t.Fatalf("expected on_hand 12, got %d", inv.QuantityOnHand)
	}

	inv, err = svc.Adjust(ctx, "user-001", &AdjustRequest{
		ProductID: "prod-001",
		Quantity:  -4,
		Reason:    "破损报废",
	})
	if err != nil {
		t.Fatalf("negative adjust failed: %v", err)
	}
	if inv.QuantityOnHand != 8 {
		t.Fatalf("expected on_hand 8, got %d", inv.QuantityOnHand)
	}

	var rows []entity.InventoryTransaction
	db.Where("product_id = ? AND transaction_type = ?", "prod-001", entity.TxTypeAdjustment).
		Order("created_at ASC").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 adjustment rows, got %d", len(rows))
	}
	if rows[1].QuantityBefore != 12 || rows[1].QuantityAfter != 8 || rows[1].Quantity != -4 {
		t.Fatalf("unexpected ledger row: %+v", rows[1])
	}
	if rows[1].Notes != "破损报废" {
		t.Fatalf("reason not recorded: %q", rows[1].Notes)
	}
}

func TestAdjustGuardsNonNegative(t *testing.T) {
	svc, db := setupInventoryTest(t)
	ctx := context.Background()

	if _, err := svc.Adjust(ctx, "user-001", &AdjustRequest{ProductID: "prod-001", Quantity: 5, Reason: "期初"}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	_, err := svc.Adjust(ctx, "user-001", &AdjustRequest{ProductID: "prod-001", Quantity: -6, Reason: "误操作"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// 被拒的调整不落流水
	var count int64
	db.Model(&entity.InventoryTransaction{}).Where("product_id = ?", "prod-001").Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 ledger row, got %d", count)
	}

	inv, err := svc.GetByProduct(ctx, "prod-001")
	if err != nil {
		t.Fatalf("GetByProduct failed: %v", err)
	}
	if inv.QuantityOnHand != 5 {
		t.Fatalf("on_hand changed by rejected adjust: %d", inv.QuantityOnHand)
	}
}

func TestAdjustUnknownProduct(t *testing.T) {
	svc, _ := setupInventoryTest(t)

	_, err := svc.Adjust(context.Background(), "user-001", &AdjustRequest{
		ProductID: "prod-missing",
		Quantity:  1,
		Reason:    "x",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCountSetsOnHand(t *testing.T) {
	svc, db := setupInventoryTest(t)
	ctx := context.Background()

	if _, err := svc.Adjust(ctx, "user-001", &AdjustRequest{ProductID: "prod-001", Quantity: 10, Reason: "期初"}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	inv, err := svc.Count(ctx, "user-002", &CountRequest{
		ProductID: "prod-001",
		Counted:   7,
		Notes:     "月度盘点",
	})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if inv.QuantityOnHand != 7 {
		t.Fatalf("expected on_hand 7, got %d", inv.QuantityOnHand)
	}
	if inv.LastCountDate == nil || inv.LastCountBy == nil || *inv.LastCountBy != "user-002" {
		t.Fatalf("count stamp missing: %+v", inv)
	}

	// 盘点差异作为 count 流水记录
	var row entity.InventoryTransaction
	if err := db.Where("product_id = ? AND transaction_type = ?", "prod-001", entity.TxTypeCount).First(&row).Error; err != nil {
		t.Fatalf("count ledger row missing: %v", err)
	}
	if row.Quantity != -3 || row.QuantityBefore != 10 || row.QuantityAfter != 7 {
		t.Fatalf("unexpected count row: %+v", row)
	}
}

func TestListTransactionsPaginated(t *testing.T) {
	svc, _ := setupInventoryTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Adjust(ctx, "user-001", &AdjustRequest{ProductID: "prod-001", Quantity: 1, Reason: "补录"}); err != nil {
			t.Fatalf("adjust %d failed: %v", i, err)
		}
	}

	rows, total, err := svc.ListTransactions(ctx, "prod-001", 1, 3)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows on first page, got %d", len(rows))
	}
}
