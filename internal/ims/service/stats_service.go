package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	statsCacheKey = "ims:po:stats"
	statsCacheTTL = 30 * time.Second
)

// POStats 采购订单统计
type POStats struct {
	ByStatus       map[string]int64 `json:"by_status"`
	Total          int64            `json:"total"`
	MonthTotal     float64          `json:"month_total"`
	OutstandingPOs int64            `json:"outstanding_pos"`
}

// StatsService 统计服务。结果在Redis缓存30秒，
// 只缓存聚合结果，库存投影本身永不走缓存。
type StatsService struct {
	poRepo *repository.PORepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewStatsService(poRepo *repository.PORepository, rdb *redis.Client, logger *zap.Logger) *StatsService {
	return &StatsService{poRepo: poRepo, rdb: rdb, logger: logger}
}

// GetPOStats 获取采购订单统计。Redis不可用时直接查库。
func (s *StatsService) GetPOStats(ctx context.Context) (*POStats, error) {
	// 先尝试从Redis获取
	if cached, err := s.rdb.Get(ctx, statsCacheKey).Result(); err == nil && cached != "" {
		var stats POStats
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
	}

	counts, err := s.poRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	monthStart := time.Now().AddDate(0, 0, -30)
	monthTotal, err := s.poRepo.SumTotalAmountSince(ctx, monthStart)
	if err != nil {
		return nil, err
	}

	stats := buildPOStats(counts, monthTotal)

	if data, err := json.Marshal(stats); err == nil {
		if err := s.rdb.Set(ctx, statsCacheKey, data, statsCacheTTL).Err(); err != nil {
			s.logger.Warn("缓存统计结果失败", zap.Error(err))
		}
	}

	return stats, nil
}

// buildPOStats 按状态汇总。未完结 = 已发出且尚未收全（sent/partial）
func buildPOStats(counts []repository.StatusCount, monthTotal float64) *POStats {
	stats := &POStats{
		ByStatus:   make(map[string]int64, len(counts)),
		MonthTotal: monthTotal,
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
		switch c.Status {
		case entity.POStatusSent, entity.POStatusPartial:
			stats.OutstandingPOs += c.Count
		}
	}
	return stats
}
