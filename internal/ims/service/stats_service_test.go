package service

import (
	"testing"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
)

func TestBuildPOStatsOutstanding(t *testing.T) {
	stats := buildPOStats([]repository.StatusCount{
		{Status: entity.POStatusDraft, Count: 4},
		{Status: entity.POStatusSent, Count: 2},
		{Status: entity.POStatusPartial, Count: 3},
		{Status: entity.POStatusReceived, Count: 5},
		{Status: entity.POStatusCancelled, Count: 1},
	}, 1234.5)

	if stats.Total != 15 {
		t.Fatalf("expected total 15, got %d", stats.Total)
	}
	// 未完结 = sent + partial
	if stats.OutstandingPOs != 5 {
		t.Fatalf("expected 5 outstanding, got %d", stats.OutstandingPOs)
	}
	if stats.ByStatus[entity.POStatusPartial] != 3 {
		t.Fatalf("unexpected by_status: %+v", stats.ByStatus)
	}
	if stats.MonthTotal != 1234.5 {
		t.Fatalf("unexpected month total: %v", stats.MonthTotal)
	}
}
