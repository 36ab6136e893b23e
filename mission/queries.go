package mission

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🔍 只读查询（API 层使用）
// =============================================================================

// Queries 任务引擎的只读查询门面。
type Queries struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewQueries 创建查询门面。
func NewQueries(db *gorm.DB, logger *zap.Logger) *Queries {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queries{db: db, logger: logger}
}

// GetMission 查询任务（含跳步与资产关联）。
func (q *Queries) GetMission(ctx context.Context, userID, missionID string) (*Mission, error) {
	var m Mission
	err := q.db.WithContext(ctx).
		Preload("Hops", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_order ASC") }).
		Preload("Hops.ToolSteps", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_order ASC") }).
		Preload("AssetMaps.Asset").
		First(&m, "id = ?", missionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "mission %s not found", missionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load mission").WithCause(err)
	}
	if userID != "" && m.UserID != userID {
		return nil, types.NewErrorf(types.ErrNotFound, "mission %s not found", missionID)
	}
	return &m, nil
}

// ListMissions 按用户（可选按状态）列出任务。
func (q *Queries) ListMissions(ctx context.Context, userID string, status MissionStatus) ([]Mission, error) {
	query := q.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var missions []Mission
	if err := query.Order("created_at DESC").Find(&missions).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list missions").WithCause(err)
	}
	return missions, nil
}

// GetHop 查询跳步（含步骤与资产关联）。
func (q *Queries) GetHop(ctx context.Context, hopID string) (*Hop, error) {
	var h Hop
	err := q.db.WithContext(ctx).
		Preload("ToolSteps", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_order ASC") }).
		Preload("AssetMaps.Asset").
		First(&h, "id = ?", hopID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "hop %s not found", hopID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load hop").WithCause(err)
	}
	return &h, nil
}

// GetToolStep 查询工具步骤。
func (q *Queries) GetToolStep(ctx context.Context, stepID string) (*ToolStep, error) {
	return loadToolStep(ctx, q.db, stepID)
}

// MissionAssets 列出任务的资产关联，可按角色过滤。
func (q *Queries) MissionAssets(ctx context.Context, missionID string, role AssetRole) ([]MissionAssetMap, error) {
	mapper := NewAssetMapper(q.db, q.logger)
	if role == "" {
		return mapper.MissionAssets(ctx, missionID)
	}
	return mapper.MissionAssetsByRole(ctx, missionID, role)
}
