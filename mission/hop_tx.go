package mission

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🦘 跳步级事务
// =============================================================================

// proposeHopPlan 在进行中的任务下创建跳步（hop_plan_proposed），设为当前
// 跳步，并按提案初始化跳步级资产关联：
//   - 引用的既有资产按声明角色挂接；
//   - 全新输出资产在任务作用域创建（任务级 intermediate），同时以
//     output 角色挂到跳步；
//   - 引用既有任务资产作输出时只建跳步级关联，不新建资产。
func (s *StateTransitionService) proposeHopPlan(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	if data.Hop == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "propose_hop_plan requires a hop proposal")
	}
	if err := data.Hop.Validate(); err != nil {
		return nil, err
	}

	m, err := loadMission(ctx, tx, data.UserID, data.MissionID)
	if err != nil {
		return nil, err
	}
	if m.Status != MissionInProgress {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s is %s, required state is %s", m.ID, m.Status, MissionInProgress)
	}
	if m.CurrentHopID != nil {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"mission %s already has a current hop (%s)", m.ID, *m.CurrentHopID)
	}

	// 序号单调递增
	var maxSeq int
	if err := tx.WithContext(ctx).Model(&Hop{}).
		Where("mission_id = ?", m.ID).
		Select("COALESCE(MAX(sequence_order), 0)").
		Scan(&maxSeq).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to compute hop sequence").WithCause(err)
	}

	lite := data.Hop
	h := &Hop{
		MissionID:       m.ID,
		SequenceOrder:   maxSeq + 1,
		Name:            lite.Name,
		Description:     lite.Description,
		Rationale:       lite.Rationale,
		SuccessCriteria: lite.SuccessCriteria,
		Status:          HopPlanProposed,
		IsFinal:         lite.IsFinal,
		Metadata:        lite.Metadata,
	}
	if err := tx.WithContext(ctx).Create(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to create hop").WithCause(err)
	}

	m.CurrentHopID = &h.ID
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to set current hop").WithCause(err)
	}

	store := NewAssetStore(tx, s.logger)
	mapper := NewAssetMapper(tx, s.logger)

	// 输入：必须是既有的任务级资产
	for _, assetID := range lite.Inputs {
		if _, err := mapper.MissionAsset(ctx, m.ID, assetID); err != nil {
			return nil, err
		}
		if err := mapper.AttachToHop(ctx, h.ID, assetID, RoleInput); err != nil {
			return nil, err
		}
	}

	// 输出：new_asset 或 existing_asset 两个分支
	switch lite.Output.Type {
	case HopOutputNewAsset:
		asset := newAssetFromLite(*lite.Output.Asset, data.UserID, m.ID, RoleIntermediate, AssetProposed)
		if err := store.Create(ctx, asset); err != nil {
			return nil, err
		}
		if err := mapper.AttachToMission(ctx, m.ID, asset.ID, RoleIntermediate); err != nil {
			return nil, err
		}
		if err := mapper.AttachToHop(ctx, h.ID, asset.ID, RoleOutput); err != nil {
			return nil, err
		}
	case HopOutputExistingAsset:
		if _, err := mapper.MissionAsset(ctx, m.ID, lite.Output.MissionAssetID); err != nil {
			return nil, err
		}
		if err := mapper.AttachToHop(ctx, h.ID, lite.Output.MissionAssetID, RoleOutput); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("hop plan proposed",
		zap.String("mission_id", m.ID),
		zap.String("hop_id", h.ID),
		zap.Int("sequence_order", h.SequenceOrder),
		zap.Bool("is_final", h.IsFinal),
	)

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(HopPlanProposed),
		Message:  "hop plan proposed",
	}, nil
}

// acceptHopPlan hop_plan_proposed → hop_plan_ready；跳步输出中仍为
// proposed 的资产提升为 pending。
func (s *StateTransitionService) acceptHopPlan(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if err := requireHopStatus(h, HopPlanProposed); err != nil {
		return nil, err
	}

	h.Status = HopPlanReady
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update hop").WithCause(err)
	}

	mapper := NewAssetMapper(tx, s.logger)
	maps, err := mapper.HopAssets(ctx, h.ID)
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
		EntityID: h.ID,
		Status:   string(HopPlanReady),
		Message:  "hop plan accepted",
	}, nil
}

// proposeHopImpl 对有序工具步骤列表做计划期校验，全部通过后逐个创建
// ToolStep（序号 = 列表位置 + 1），跳步转入 hop_impl_proposed。
// 校验错误整批返回，方便规划代理一次修正。
func (s *StateTransitionService) proposeHopImpl(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	if len(data.ToolSteps) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "propose_hop_impl requires at least one tool step")
	}

	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if err := requireHopStatus(h, HopPlanReady); err != nil {
		return nil, err
	}

	for i := range data.ToolSteps {
		if err := data.ToolSteps[i].Validate(); err != nil {
			return nil, err
		}
	}

	mapper := NewAssetMapper(tx, s.logger)
	hopAssets, err := mapper.HopAssets(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	if verr := validateToolChain(data.ToolSteps, hopAssets, s.registry); verr != nil {
		return nil, verr.AsTypedError()
	}

	for i, lite := range data.ToolSteps {
		step := &ToolStep{
			HopID:            h.ID,
			ToolID:           lite.ToolID,
			SequenceOrder:    i + 1,
			Description:      lite.Description,
			ParameterMapping: lite.ParameterMapping,
			ResultMapping:    lite.ResultMapping,
			ResourceConfigs:  lite.ResourceConfigs,
			Status:           StepProposed,
		}
		if err := tx.WithContext(ctx).Create(step).Error; err != nil {
			return nil, types.NewError(types.ErrDatabase, "failed to create tool step").WithCause(err)
		}
	}

	h.Status = HopImplProposed
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update hop").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(HopImplProposed),
		Message:  "hop implementation proposed",
		Metadata: map[string]any{"tool_steps": len(data.ToolSteps)},
	}, nil
}

// acceptHopImpl hop_impl_proposed → hop_impl_ready；所有 proposed
// 步骤批量提升为 ready_to_execute（整批操作，不逐个）。
func (s *StateTransitionService) acceptHopImpl(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if err := requireHopStatus(h, HopImplProposed); err != nil {
		return nil, err
	}

	h.Status = HopImplReady
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update hop").WithCause(err)
	}

	if err := tx.WithContext(ctx).Model(&ToolStep{}).
		Where("hop_id = ? AND status = ?", h.ID, StepProposed).
		Update("status", StepReadyToExecute).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to promote tool steps").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(HopImplReady),
		Message:  "hop implementation accepted",
	}, nil
}

// executeHop hop_impl_ready → executing；首个（序号 1）处于
// ready_to_execute 的步骤推进为 executing 并打启动时间戳。
// 后续步骤由各自的完成事件推进，不由本调用驱动。
func (s *StateTransitionService) executeHop(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if err := requireHopStatus(h, HopImplReady); err != nil {
		return nil, err
	}

	h.Status = HopExecuting
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update hop").WithCause(err)
	}

	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Model(&ToolStep{}).
		Where("hop_id = ? AND sequence_order = 1 AND status = ?", h.ID, StepReadyToExecute).
		Updates(map[string]any{"status": StepExecuting, "started_at": now}).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to advance first tool step").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(HopExecuting),
		Message:  "hop executing",
	}, nil
}

// completeHop 调用方驱动的显式跳步完成（要求 executing）。
// 与工具步骤级联共用 finishHop。
func (s *StateTransitionService) completeHop(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if err := requireHopStatus(h, HopExecuting); err != nil {
		return nil, err
	}

	missionCompleted, err := s.finishHop(ctx, tx, h)
	if err != nil {
		return nil, err
	}

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(HopCompleted),
		Message:  "hop completed",
		Metadata: map[string]any{"mission_completed": missionCompleted},
	}, nil
}

// terminateHop failed / cancelled 终态转换；错误信息落到 Hop 上，
// 任务保持 in_progress（由调用方决定是否终止任务）。
func (s *StateTransitionService) terminateHop(ctx context.Context, tx *gorm.DB, data TransactionData, target HopStatus) (*TransactionResult, error) {
	h, err := loadHop(ctx, tx, data.HopID)
	if err != nil {
		return nil, err
	}
	if h.Status.Terminal() {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"hop %s is already terminal (%s)", h.ID, h.Status)
	}

	h.Status = target
	h.ErrorMessage = data.ErrorMessage
	if err := tx.WithContext(ctx).Save(h).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update hop").WithCause(err)
	}

	// 当前跳步指针释放，允许重新规划
	if err := tx.WithContext(ctx).Model(&Mission{}).
		Where("id = ? AND current_hop_id = ?", h.MissionID, h.ID).
		Update("current_hop_id", nil).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to clear current hop").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: h.ID,
		Status:   string(target),
	}, nil
}
