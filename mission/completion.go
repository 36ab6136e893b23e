package mission

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🏁 完成规则
// =============================================================================
// 任务完成由资产状态单独决定："跳步序列耗尽"与"任务目标达成"相关
// 但不等同，系统始终以资产规则为准。每次工具步骤完成都重新评估
// （全量扫描 output 关联；不做余量计数缓存，换取事务一致性的简单）。

// outputAssetsReady 完成规则本体：任务至少有一个 output 角色资产，
// 且全部 output 资产 status == ready。
func (s *StateTransitionService) outputAssetsReady(ctx context.Context, tx *gorm.DB, missionID string) (bool, error) {
	maps, err := NewAssetMapper(tx, s.logger).MissionAssetsByRole(ctx, missionID, RoleOutput)
	if err != nil {
		return false, err
	}
	if len(maps) == 0 {
		return false, nil
	}
	for _, am := range maps {
		if am.Asset == nil || am.Asset.Status != AssetReady {
			return false, nil
		}
	}
	return true, nil
}

// maybeCompleteMission 规则满足且任务处于 in_progress 时完成任务。
// 返回是否触发了完成。
func (s *StateTransitionService) maybeCompleteMission(ctx context.Context, tx *gorm.DB, missionID string) (bool, error) {
	m, err := loadMission(ctx, tx, "", missionID)
	if err != nil {
		return false, err
	}
	if m.Status != MissionInProgress {
		return false, nil
	}

	satisfied, err := s.outputAssetsReady(ctx, tx, missionID)
	if err != nil {
		return false, err
	}
	if !satisfied {
		return false, nil
	}

	if err := s.markMissionCompleted(ctx, tx, m); err != nil {
		return false, err
	}
	return true, nil
}

// markMissionCompleted 落库任务完成。
func (s *StateTransitionService) markMissionCompleted(ctx context.Context, tx *gorm.DB, m *Mission) error {
	now := time.Now().UTC()
	m.Status = MissionCompleted
	m.CompletedAt = &now
	m.CurrentHopID = nil
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to complete mission").WithCause(err)
	}
	s.logger.Info("mission completed", zap.String("mission_id", m.ID))
	return nil
}

// finishHop 跳步完成（显式调用与步骤级联共用）：
// 置 completed + is_resolved，然后评估任务完成规则。规则满足则任务
// 完成；不满足则清空 current_hop_id 以便提出下一跳。is_final 跳步
// 完成而规则不满足属于反常情况，记警告但不强行完成任务。
// 返回是否触发了任务完成。
func (s *StateTransitionService) finishHop(ctx context.Context, tx *gorm.DB, h *Hop) (bool, error) {
	h.Status = HopCompleted
	h.IsResolved = true
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return false, types.NewError(types.ErrDatabase, "failed to complete hop").WithCause(err)
	}

	missionCompleted, err := s.maybeCompleteMission(ctx, tx, h.MissionID)
	if err != nil {
		return false, err
	}
	if missionCompleted {
		return true, nil
	}

	if h.IsFinal {
		s.logger.Warn("final hop completed but mission output assets are not all ready",
			zap.String("mission_id", h.MissionID),
			zap.String("hop_id", h.ID),
		)
	}

	// 允许提出下一跳
	if err := tx.WithContext(ctx).Model(&Mission{}).
		Where("id = ? AND current_hop_id = ?", h.MissionID, h.ID).
		Update("current_hop_id", nil).Error; err != nil {
		return false, types.NewError(types.ErrDatabase, "failed to clear current hop").WithCause(err)
	}
	return false, nil
}
