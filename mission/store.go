package mission

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 💾 资产存储
// =============================================================================

// AssetStore 资产记录的 CRUD 与按作用域查询。
// db 可以是普通连接，也可以是进行中的事务句柄：状态机在每个事务内
// 用 tx 重建一个 store，保证所有写入落在同一提交单元里。
type AssetStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAssetStore 创建资产存储。
func NewAssetStore(db *gorm.DB, logger *zap.Logger) *AssetStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetStore{db: db, logger: logger}
}

// Create 创建资产。
func (s *AssetStore) Create(ctx context.Context, asset *Asset) error {
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to create asset").WithCause(err)
	}
	return nil
}

// Get 按 ID 查询资产。
func (s *AssetStore) Get(ctx context.Context, id string) (*Asset, error) {
	var asset Asset
	err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "asset %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load asset").WithCause(err)
	}
	return &asset, nil
}

// GetOwned 按 ID 查询资产并校验归属用户。
func (s *AssetStore) GetOwned(ctx context.Context, userID, id string) (*Asset, error) {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.OwnerUserID != userID {
		return nil, types.NewErrorf(types.ErrNotFound, "asset %s not found", id)
	}
	return asset, nil
}

// ListByScope 按作用域列出资产。
func (s *AssetStore) ListByScope(ctx context.Context, scopeType ScopeType, scopeID string) ([]Asset, error) {
	var assets []Asset
	err := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ?", scopeType, scopeID).
		Order("created_at ASC").
		Find(&assets).Error
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list assets").WithCause(err)
	}
	return assets, nil
}

// UpdateStatus 更新资产状态。
func (s *AssetStore) UpdateStatus(ctx context.Context, id string, status AssetStatus) error {
	res := s.db.WithContext(ctx).Model(&Asset{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return types.NewError(types.ErrDatabase, "failed to update asset status").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewErrorf(types.ErrNotFound, "asset %s not found", id)
	}
	return nil
}

// PromoteProposed 把一批资产中仍处于 proposed 的批量提升为 pending。
// 提案被接受时调用（accept_mission / accept_hop_plan）。
func (s *AssetStore) PromoteProposed(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&Asset{}).
		Where("id IN ? AND status = ?", assetIDs, AssetProposed).
		Update("status", AssetPending).Error
	if err != nil {
		return types.NewError(types.ErrDatabase, "failed to promote assets").WithCause(err)
	}
	return nil
}

// Provenance 资产内容更新的溯源条目。
type Provenance struct {
	ToolID     string    `json:"tool_id"`
	ToolStepID string    `json:"tool_step_id"`
	OutputName string    `json:"output_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// ApplyResult 把工具输出写入既有资产：content + status=ready，
// 并在 metadata.provenance 追加溯源条目。资产身份不变（只更新，
// 不新建），这是结果映射契约的关键不变量。
func (s *AssetStore) ApplyResult(ctx context.Context, id string, content any, prov Provenance) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if asset.Metadata == nil {
		asset.Metadata = make(map[string]any)
	}
	history, _ := asset.Metadata["provenance"].([]any)
	asset.Metadata["provenance"] = append(history, prov)

	asset.Content = content
	asset.Status = AssetReady

	if err := s.db.WithContext(ctx).Save(asset).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to apply tool result to asset").WithCause(err)
	}

	s.logger.Debug("asset updated from tool output",
		zap.String("asset_id", id),
		zap.String("tool_id", prov.ToolID),
		zap.String("output_name", prov.OutputName),
	)
	return nil
}
