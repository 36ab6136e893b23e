package mission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
)

// 场景 2 的最终跳步变体：跳步输出直接引用任务的 output 资产，
// 工具步骤完成 → 资产 ready → 跳步完成 → 任务完成。
func TestCompleteToolStep_FullCascade(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	inputID := missionAssetIDByRole(t, db, missionID, RoleInput)
	outputID := missionAssetIDByRole(t, db, missionID, RoleOutput)

	res, err := svc.UpdateState(ctx, TxProposeHopPlan, TransactionData{
		UserID:    "user-1",
		MissionID: missionID,
		Hop: &HopLite{
			Name:    "Search and report",
			IsFinal: true,
			Inputs:  []string{inputID},
			Output:  HopOutputSpec{Type: HopOutputExistingAsset, MissionAssetID: outputID},
		},
	})
	require.NoError(t, err)
	hopID := res.EntityID

	_, err = svc.UpdateState(ctx, TxAcceptHopPlan, TransactionData{UserID: "user-1", HopID: hopID})
	require.NoError(t, err)

	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	result, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID: stepID,
		ExecutionResult: &toolkit.ExecutionResult{
			Outputs: map[string]any{"articles": "result"},
		},
	})
	require.NoError(t, err)

	asset := getAsset(t, db, outputID)
	assert.Equal(t, "result", asset.Content)
	assert.Equal(t, AssetReady, asset.Status)

	// 溯源记录已追加
	require.NotNil(t, asset.Metadata)
	assert.NotEmpty(t, asset.Metadata["provenance"])

	h := getHop(t, db, hopID)
	assert.Equal(t, HopCompleted, h.Status)
	assert.True(t, h.IsResolved)

	assert.Equal(t, MissionCompleted, getMission(t, db, missionID).Status)
	assert.Equal(t, true, result.Metadata["hop_completed"])
	assert.Equal(t, true, result.Metadata["mission_completed"])
}

// 场景 3：非最终跳步完成但任务输出未就绪 → 任务保持 in_progress，
// current_hop_id 释放，可以提出下一跳。
func TestCompleteToolStep_NonFinalHopLeavesMissionInProgress(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	intermediateID := hopAssetIDByRole(t, db, hopID, RoleOutput)

	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, intermediateID))

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID: stepID,
		ExecutionResult: &toolkit.ExecutionResult{
			Outputs: map[string]any{"articles": []any{"paper-1", "paper-2"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, AssetReady, getAsset(t, db, intermediateID).Status)
	assert.Equal(t, HopCompleted, getHop(t, db, hopID).Status)

	m := getMission(t, db, missionID)
	assert.Equal(t, MissionInProgress, m.Status)
	assert.Nil(t, m.CurrentHopID)

	// 下一跳可以提出
	next := proposeHop(t, svc, db, missionID, true)
	assert.Equal(t, 2, getHop(t, db, next).SequenceOrder)
}

// P3：工具步骤完成从不新建资产；跳步的资产集合在实现提案时定格。
func TestCompleteToolStep_NeverCreatesAssets(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)
	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	var before int64
	require.NoError(t, db.Model(&Asset{}).Count(&before).Error)

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      stepID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"articles": "x"}},
	})
	require.NoError(t, err)

	var after int64
	require.NoError(t, db.Model(&Asset{}).Count(&after).Error)
	assert.Equal(t, before, after)
}

// P5：声明的输出名在执行结果中缺失 → 软失败：不报错、对应资产不动，
// 同一调用里其他映射照常更新。
func TestCompleteToolStep_SoftMissingOutput(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)
	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	result, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID: stepID,
		ExecutionResult: &toolkit.ExecutionResult{
			Outputs: map[string]any{"something_else": 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, AssetPending, getAsset(t, db, outputID).Status)
	assert.Empty(t, result.Metadata["updated_assets"])

	// 事务照常提交：步骤已完成
	var step ToolStep
	require.NoError(t, db.First(&step, "id = ?", stepID).Error)
	assert.Equal(t, StepCompleted, step.Status)
}

// 别名回退：pubmed_search 声明 articles，处理器历史上返回 results。
func TestCompleteToolStep_AliasFallback(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)
	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID: stepID,
		ExecutionResult: &toolkit.ExecutionResult{
			Outputs: map[string]any{"results": "aliased content"},
		},
	})
	require.NoError(t, err)

	asset := getAsset(t, db, outputID)
	assert.Equal(t, "aliased content", asset.Content)
	assert.Equal(t, AssetReady, asset.Status)
}

// 结果映射指向不存在的资产：按资产逐个跳过，不影响其他映射与事务。
func TestCompleteToolStep_MissingAssetSkippedPerAsset(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)

	// 绕开计划期校验直接造一个带坏映射的步骤（模拟资产事后丢失）
	step := &ToolStep{
		HopID:         hopID,
		ToolID:        "pubmed_search",
		SequenceOrder: 1,
		Status:        StepReadyToExecute,
		ResultMapping: map[string]Mapping{
			"articles": AssetFieldMapping(outputID),
			"ghost":    AssetFieldMapping("no-such-asset"),
		},
	}
	require.NoError(t, db.Create(step).Error)

	result, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID: step.ID,
		ExecutionResult: &toolkit.ExecutionResult{
			Outputs: map[string]any{"articles": "ok", "ghost": "lost"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, AssetReady, getAsset(t, db, outputID).Status)
	assert.Equal(t, []string{outputID}, resultAssetIDs(result))
}

// 乱序完成容忍：ready_to_execute（未打 EXECUTING 戳）也可直接完成。
func TestCompleteToolStep_OutOfOrderTolerance(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)

	steps := []ToolStepLite{
		singleStepImpl(inputID, outputID)[0],
		{
			ToolID:           "summarize",
			ParameterMapping: map[string]Mapping{"documents": AssetFieldMapping(outputID)},
			ResultMapping:    map[string]Mapping{"summary": DiscardMapping()},
		},
	}
	driveHopToExecuting(t, svc, db, hopID, steps)

	// 第二步仍是 ready_to_execute，先于第一步完成
	var second ToolStep
	require.NoError(t, db.Where("hop_id = ? AND sequence_order = 2", hopID).First(&second).Error)
	require.Equal(t, StepReadyToExecute, second.Status)

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      second.ID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"summary": "s"}},
	})
	require.NoError(t, err)

	// 完成时补打了时间戳
	require.NoError(t, db.First(&second, "id = ?", second.ID).Error)
	assert.Equal(t, StepCompleted, second.Status)
	assert.NotNil(t, second.StartedAt)
	assert.NotNil(t, second.CompletedAt)

	// 跳步尚未完成（第一步还在执行）
	assert.Equal(t, HopExecuting, getHop(t, db, hopID).Status)
}

func TestCompleteToolStep_AdvancesNextStep(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)

	steps := []ToolStepLite{
		singleStepImpl(inputID, outputID)[0],
		{
			ToolID:           "summarize",
			ParameterMapping: map[string]Mapping{"documents": AssetFieldMapping(outputID)},
			ResultMapping:    map[string]Mapping{"summary": DiscardMapping()},
		},
	}
	firstID := driveHopToExecuting(t, svc, db, hopID, steps)

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      firstID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"articles": "x"}},
	})
	require.NoError(t, err)

	var second ToolStep
	require.NoError(t, db.Where("hop_id = ? AND sequence_order = 2", hopID).First(&second).Error)
	assert.Equal(t, StepExecuting, second.Status)
	assert.NotNil(t, second.StartedAt)
}

// 完成规则只看输出资产：最后一个 output 资产 ready 的瞬间任务即完成，
// 不要求所在跳步先行收尾。
func TestCompleteToolStep_MissionCompletesMidHop(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	inputID := missionAssetIDByRole(t, db, missionID, RoleInput)
	outputID := missionAssetIDByRole(t, db, missionID, RoleOutput)

	res, err := svc.UpdateState(ctx, TxProposeHopPlan, TransactionData{
		UserID:    "user-1",
		MissionID: missionID,
		Hop: &HopLite{
			Name:    "Search then summarize",
			IsFinal: true,
			Inputs:  []string{inputID},
			Output:  HopOutputSpec{Type: HopOutputExistingAsset, MissionAssetID: outputID},
		},
	})
	require.NoError(t, err)
	hopID := res.EntityID

	_, err = svc.UpdateState(ctx, TxAcceptHopPlan, TransactionData{UserID: "user-1", HopID: hopID})
	require.NoError(t, err)

	// 第一步就把任务的唯一 output 资产写满，第二步只做收尾加工
	steps := []ToolStepLite{
		singleStepImpl(inputID, outputID)[0],
		{
			ToolID:           "summarize",
			ParameterMapping: map[string]Mapping{"documents": AssetFieldMapping(outputID)},
			ResultMapping:    map[string]Mapping{"summary": DiscardMapping()},
		},
	}
	firstID := driveHopToExecuting(t, svc, db, hopID, steps)

	result, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      firstID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"articles": "survey"}},
	})
	require.NoError(t, err)

	assert.Equal(t, AssetReady, getAsset(t, db, outputID).Status)

	// 任务已完成,跳步还在跑第二步
	assert.Equal(t, MissionCompleted, getMission(t, db, missionID).Status)
	assert.Equal(t, HopExecuting, getHop(t, db, hopID).Status)
	assert.Equal(t, false, result.Metadata["hop_completed"])
	assert.Equal(t, true, result.Metadata["mission_completed"])
}

func TestCompleteToolStep_RejectsTerminalStep(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)
	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	_, err := svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      stepID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"articles": "x"}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      stepID,
		ExecutionResult: &toolkit.ExecutionResult{Outputs: map[string]any{"articles": "y"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestFailToolStep(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	missionID := proposeAndAcceptMission(t, svc, sampleMissionLite())
	hopID := proposeHop(t, svc, db, missionID, false)
	inputID := hopAssetIDByRole(t, db, hopID, RoleInput)
	outputID := hopAssetIDByRole(t, db, hopID, RoleOutput)
	stepID := driveHopToExecuting(t, svc, db, hopID, singleStepImpl(inputID, outputID))

	_, err := svc.UpdateState(ctx, TxFailToolStep, TransactionData{
		ToolStepID:   stepID,
		ErrorMessage: "provider returned 503",
	})
	require.NoError(t, err)

	var step ToolStep
	require.NoError(t, db.First(&step, "id = ?", stepID).Error)
	assert.Equal(t, StepFailed, step.Status)
	assert.Equal(t, "provider returned 503", step.ErrorMessage)

	// 跳步不自动终止
	assert.Equal(t, HopExecuting, getHop(t, db, hopID).Status)
}

// resultAssetIDs 取出事务结果里的已更新资产 ID 列表。
func resultAssetIDs(res *TransactionResult) []string {
	ids, _ := res.Metadata["updated_assets"].([]string)
	return ids
}
