package mission

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🔗 资产映射服务
// =============================================================================

// AssetMapper 维护资产与任务/跳步之间的多对多关联，
// 每条关联携带该作用域内的角色（input/output/intermediate）。
type AssetMapper struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAssetMapper 创建资产映射服务。
func NewAssetMapper(db *gorm.DB, logger *zap.Logger) *AssetMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetMapper{db: db, logger: logger}
}

// AttachToMission 建立任务级关联。同一 (mission, asset) 只允许一条。
func (m *AssetMapper) AttachToMission(ctx context.Context, missionID, assetID string, role AssetRole) error {
	rec := MissionAssetMap{MissionID: missionID, AssetID: assetID, Role: role}
	if err := m.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return types.NewErrorf(types.ErrDatabase, "failed to attach asset %s to mission %s", assetID, missionID).WithCause(err)
	}
	return nil
}

// AttachToHop 建立跳步级关联。
func (m *AssetMapper) AttachToHop(ctx context.Context, hopID, assetID string, role AssetRole) error {
	rec := HopAssetMap{HopID: hopID, AssetID: assetID, Role: role}
	if err := m.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return types.NewErrorf(types.ErrDatabase, "failed to attach asset %s to hop %s", assetID, hopID).WithCause(err)
	}
	return nil
}

// MissionAssets 列出任务的全部资产关联（含资产本体）。
func (m *AssetMapper) MissionAssets(ctx context.Context, missionID string) ([]MissionAssetMap, error) {
	var maps []MissionAssetMap
	err := m.db.WithContext(ctx).
		Preload("Asset").
		Where("mission_id = ?", missionID).
		Order("id ASC").
		Find(&maps).Error
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list mission assets").WithCause(err)
	}
	return maps, nil
}

// MissionAssetsByRole 列出任务内指定角色的资产关联。
func (m *AssetMapper) MissionAssetsByRole(ctx context.Context, missionID string, role AssetRole) ([]MissionAssetMap, error) {
	var maps []MissionAssetMap
	err := m.db.WithContext(ctx).
		Preload("Asset").
		Where("mission_id = ? AND role = ?", missionID, role).
		Order("id ASC").
		Find(&maps).Error
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list mission assets by role").WithCause(err)
	}
	return maps, nil
}

// HopAssets 列出跳步的全部资产关联（含资产本体）。
func (m *AssetMapper) HopAssets(ctx context.Context, hopID string) ([]HopAssetMap, error) {
	var maps []HopAssetMap
	err := m.db.WithContext(ctx).
		Preload("Asset").
		Where("hop_id = ?", hopID).
		Order("id ASC").
		Find(&maps).Error
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list hop assets").WithCause(err)
	}
	return maps, nil
}

// MissionAsset 查询单条任务级关联。
func (m *AssetMapper) MissionAsset(ctx context.Context, missionID, assetID string) (*MissionAssetMap, error) {
	var rec MissionAssetMap
	err := m.db.WithContext(ctx).
		Preload("Asset").
		Where("mission_id = ? AND asset_id = ?", missionID, assetID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "asset %s is not mapped to mission %s", assetID, missionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load mission asset").WithCause(err)
	}
	return &rec, nil
}
