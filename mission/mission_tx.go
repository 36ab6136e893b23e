package mission

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 📋 任务级事务
// =============================================================================

// proposeMission 创建任务（awaiting_approval）、物化提案声明的全部
// 输入/输出资产、建立任务级关联，并把任务挂到调用方的活跃会话。
// 整体是一个原子单元：任何一步失败都回滚全部创建。
func (s *StateTransitionService) proposeMission(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	if data.Mission == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "propose_mission requires a mission proposal")
	}
	if data.UserID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "propose_mission requires a user id")
	}
	if err := data.Mission.Validate(); err != nil {
		return nil, err
	}

	lite := data.Mission
	m := &Mission{
		UserID:          data.UserID,
		Name:            lite.Name,
		Description:     lite.Description,
		Goal:            lite.Goal,
		SuccessCriteria: lite.SuccessCriteria,
		Status:          MissionAwaitingApproval,
		Metadata:        lite.Metadata,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to create mission").WithCause(err)
	}

	store := NewAssetStore(tx, s.logger)
	mapper := NewAssetMapper(tx, s.logger)

	// 输入资产：内容由调用方提供，创建即 pending
	for _, al := range lite.Inputs {
		asset := newAssetFromLite(al, data.UserID, m.ID, RoleInput, AssetPending)
		if err := store.Create(ctx, asset); err != nil {
			return nil, err
		}
		if err := mapper.AttachToMission(ctx, m.ID, asset.ID, RoleInput); err != nil {
			return nil, err
		}
	}

	// 输出资产：待后续跳步产出，创建即 proposed
	for _, al := range lite.Outputs {
		asset := newAssetFromLite(al, data.UserID, m.ID, RoleOutput, AssetProposed)
		if err := store.Create(ctx, asset); err != nil {
			return nil, err
		}
		if err := mapper.AttachToMission(ctx, m.ID, asset.ID, RoleOutput); err != nil {
			return nil, err
		}
	}

	// 会话挂接属于同一原子单元：失败则整个任务创建回滚
	if s.sessions != nil {
		if err := s.sessions.LinkMission(ctx, data.UserID, m.ID); err != nil {
			return nil, types.NewError(types.ErrSessionUnavailable, "failed to link mission to active session").WithCause(err)
		}
	}

	s.logger.Debug("mission proposed",
		zap.String("mission_id", m.ID),
		zap.Int("inputs", len(lite.Inputs)),
		zap.Int("outputs", len(lite.Outputs)),
	)

	return &TransactionResult{
		Success:  true,
		EntityID: m.ID,
		Status:   string(MissionAwaitingApproval),
		Message:  "mission proposed",
	}, nil
}

// acceptMission awaiting_approval → in_progress，并把任务作用域内
// 仍处于 proposed 的资产批量提升为 pending。
func (s *StateTransitionService) acceptMission(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	m, err := loadMission(ctx, tx, data.UserID, data.MissionID)
	if err != nil {
		return nil, err
	}
	if m.Status != MissionAwaitingApproval {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s is %s, required state is %s", m.ID, m.Status, MissionAwaitingApproval)
	}

	m.Status = MissionInProgress
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update mission").WithCause(err)
	}

	// 提案被接受：proposed 资产进入 pending
	mapper := NewAssetMapper(tx, s.logger)
	maps, err := mapper.MissionAssets(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(maps))
	for _, am := range maps {
		ids = append(ids, am.AssetID)
	}
	if err := NewAssetStore(tx, s.logger).PromoteProposed(ctx, ids); err != nil {
		return nil, err
	}

	return &TransactionResult{
		Success:  true,
		EntityID: m.ID,
		Status:   string(MissionInProgress),
		Message:  "mission accepted",
	}, nil
}

// completeMission 显式任务完成。只有完成规则满足（至少一个 output
// 资产且全部 ready）才允许；否则报转换错误而不是猜测。
func (s *StateTransitionService) completeMission(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	m, err := loadMission(ctx, tx, data.UserID, data.MissionID)
	if err != nil {
		return nil, err
	}
	if m.Status != MissionInProgress {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s is %s, required state is %s", m.ID, m.Status, MissionInProgress)
	}

	satisfied, err := s.outputAssetsReady(ctx, tx, m.ID)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s cannot complete: not all output assets are ready", m.ID)
	}

	if err := s.markMissionCompleted(ctx, tx, m); err != nil {
		return nil, err
	}
	return &TransactionResult{
		Success:  true,
		EntityID: m.ID,
		Status:   string(MissionCompleted),
		Message:  "mission completed",
	}, nil
}

// terminateMission failed / cancelled 终态转换。终态之后不再接受任何转换。
func (s *StateTransitionService) terminateMission(ctx context.Context, tx *gorm.DB, data TransactionData, target MissionStatus) (*TransactionResult, error) {
	m, err := loadMission(ctx, tx, data.UserID, data.MissionID)
	if err != nil {
		return nil, err
	}
	if m.Status.Terminal() {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s is already terminal (%s)", m.ID, m.Status)
	}

	now := time.Now().UTC()
	m.Status = target
	m.CompletedAt = &now
	if data.ErrorMessage != "" {
		if m.Metadata == nil {
			m.Metadata = make(map[string]any)
		}
		m.Metadata["error_message"] = data.ErrorMessage
	}
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update mission").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: m.ID,
		Status:   string(target),
	}, nil
}

// newAssetFromLite 按提案声明构造资产记录（任务作用域）。
func newAssetFromLite(al AssetLite, userID, missionID string, role AssetRole, status AssetStatus) *Asset {
	return &Asset{
		OwnerUserID:      userID,
		Name:             al.Name,
		Description:      al.Description,
		SchemaDefinition: al.SchemaDefinition,
		Subtype:          al.Subtype,
		ScopeType:        ScopeMission,
		ScopeID:          missionID,
		Status:           status,
		Role:             role,
		Content:          al.Content,
		Metadata:         al.Metadata,
	}
}
