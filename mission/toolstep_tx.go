package mission

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🔧 工具步骤完成与资产更新级联
// =============================================================================

// completeToolStep 工具执行结果回流的唯一入口：
//
//  1. 校验步骤存在且处于可完成状态（proposed / ready_to_execute /
//     executing 三者都被容忍，观察到的前置状态记日志）；
//  2. 置 completed、保存执行结果、打时间戳；
//  3. 资产更新通道：按 result_mapping 把工具输出写到既有资产
//     （content + ready + 溯源）。输出名缺失先按别名表回退一次，
//     仍缺失则软失败跳过；资产缺失记错误并逐个跳过，都不中止事务；
//  4. 跳步进度检查：全部步骤完成则完成跳步；
//  5. 任务完成规则每次都重新评估——非最终跳步也可能补齐最后一个
//     输出资产。
//
// 以上全部在同一事务内提交。
func (s *StateTransitionService) completeToolStep(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	if data.ExecutionResult == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "complete_tool_step requires an execution result")
	}

	step, err := loadToolStep(ctx, tx, data.ToolStepID)
	if err != nil {
		return nil, err
	}
	if !step.Status.Completable() {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"tool step %s is %s, completion requires proposed, ready_to_execute or executing", step.ID, step.Status)
	}

	// 乱序完成的容忍是刻意保留的；记录观察到的前置状态便于后续收紧
	s.logger.Info("completing tool step",
		zap.String("tool_step_id", step.ID),
		zap.String("tool_id", step.ToolID),
		zap.String("prior_status", string(step.Status)),
	)

	now := time.Now().UTC()
	step.Status = StepCompleted
	step.CompletedAt = &now
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	step.ExecutionResult = map[string]any{
		"outputs":  data.ExecutionResult.Outputs,
		"metadata": data.ExecutionResult.Metadata,
	}
	if err := tx.WithContext(ctx).Save(step).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update tool step").WithCause(err)
	}

	updatedAssets := s.applyResultMappings(ctx, tx, step, data.ExecutionResult.Outputs, now)
	if s.metrics != nil {
		s.metrics.RecordAssetUpdates(len(updatedAssets))
	}

	// 跳步进度
	hop, err := loadHop(ctx, tx, step.HopID)
	if err != nil {
		return nil, err
	}
	var total, completed int64
	if err := tx.WithContext(ctx).Model(&ToolStep{}).
		Where("hop_id = ?", hop.ID).Count(&total).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to count tool steps").WithCause(err)
	}
	if err := tx.WithContext(ctx).Model(&ToolStep{}).
		Where("hop_id = ? AND status = ?", hop.ID, StepCompleted).Count(&completed).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to count completed tool steps").WithCause(err)
	}

	hopCompleted := false
	missionCompleted := false
	if completed == total && !hop.Status.Terminal() {
		missionCompleted, err = s.finishHop(ctx, tx, hop)
		if err != nil {
			return nil, err
		}
		hopCompleted = true
	} else {
		// 顺次推进：下一个就绪步骤进入 executing
		if err := tx.WithContext(ctx).Model(&ToolStep{}).
			Where("hop_id = ? AND sequence_order = ? AND status = ?", hop.ID, step.SequenceOrder+1, StepReadyToExecute).
			Updates(map[string]any{"status": StepExecuting, "started_at": now}).Error; err != nil {
			return nil, types.NewError(types.ErrDatabase, "failed to advance next tool step").WithCause(err)
		}

		// 完成规则每个步骤都评估：非最终跳步也可能补齐最后一个输出
		missionCompleted, err = s.maybeCompleteMission(ctx, tx, hop.MissionID)
		if err != nil {
			return nil, err
		}
	}

	return &TransactionResult{
		Success:  true,
		EntityID: step.ID,
		Status:   string(StepCompleted),
		Message:  "tool step completed",
		Metadata: map[string]any{
			"updated_assets":    updatedAssets,
			"completed_steps":   completed,
			"total_steps":       total,
			"hop_completed":     hopCompleted,
			"mission_completed": missionCompleted,
		},
	}, nil
}

// applyResultMappings 资产更新通道。所有失败都是软失败：
// 记日志、跳过、继续，事务照常提交能更新的部分。
func (s *StateTransitionService) applyResultMappings(ctx context.Context, tx *gorm.DB, step *ToolStep, outputs map[string]any, now time.Time) []string {
	store := NewAssetStore(tx, s.logger)
	var updated []string

	for outputName, m := range step.ResultMapping {
		if m.Type != MappingAssetField {
			continue
		}

		value, ok := outputs[outputName]
		if !ok {
			// 一次别名回退：个别工具的输出键与声明不一致
			if actual, aliased := s.registry.ResolveOutputAlias(step.ToolID, outputName); aliased {
				value, ok = outputs[actual]
				if ok {
					s.logger.Debug("resolved output via alias table",
						zap.String("tool_id", step.ToolID),
						zap.String("declared", outputName),
						zap.String("actual", actual),
					)
				}
			}
		}
		if !ok {
			s.logger.Warn("declared output missing from tool result, skipping",
				zap.String("tool_step_id", step.ID),
				zap.String("tool_id", step.ToolID),
				zap.String("output_name", outputName),
			)
			continue
		}

		// 工具只更新既有资产，从不创建；缺失按资产逐个跳过
		prov := Provenance{
			ToolID:     step.ToolID,
			ToolStepID: step.ID,
			OutputName: outputName,
			Timestamp:  now,
		}
		if err := store.ApplyResult(ctx, m.AssetID, value, prov); err != nil {
			s.logger.Error("failed to update asset from tool output, skipping",
				zap.String("tool_step_id", step.ID),
				zap.String("asset_id", m.AssetID),
				zap.Error(err),
			)
			continue
		}
		updated = append(updated, m.AssetID)
	}

	return updated
}

// failToolStep 工具处理器异常回流：步骤置 failed 并记录错误信息。
// 已完成的同级步骤不受影响。跳步是否终止由调用方另行决定。
func (s *StateTransitionService) failToolStep(ctx context.Context, tx *gorm.DB, data TransactionData) (*TransactionResult, error) {
	step, err := loadToolStep(ctx, tx, data.ToolStepID)
	if err != nil {
		return nil, err
	}
	if step.Status.Terminal() {
		return nil, types.NewErrorf(types.ErrInvalidTransition,
			"tool step %s is already terminal (%s)", step.ID, step.Status)
	}

	now := time.Now().UTC()
	step.Status = StepFailed
	step.ErrorMessage = data.ErrorMessage
	step.CompletedAt = &now
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	if err := tx.WithContext(ctx).Save(step).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to update tool step").WithCause(err)
	}

	return &TransactionResult{
		Success:  true,
		EntityID: step.ID,
		Status:   string(StepFailed),
		Metadata: map[string]any{"hop_id": step.HopID},
	}, nil
}
