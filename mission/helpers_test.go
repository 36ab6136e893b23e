package mission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/toolkit"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// 自动迁移
	require.NoError(t, InitDatabase(db))
	return db
}

func newTestRegistry(t *testing.T) *toolkit.Registry {
	t.Helper()

	reg, err := toolkit.NewBuiltinRegistry(zaptest.NewLogger(t))
	require.NoError(t, err)
	return reg
}

func newTestService(t *testing.T, db *gorm.DB) *StateTransitionService {
	t.Helper()

	return NewStateTransitionService(db, newTestRegistry(t), ServiceOptions{
		Logger: zaptest.NewLogger(t),
	})
}

// sampleMissionLite 一个输入（检索条件）+ 一个输出（调研报告）的任务提案。
func sampleMissionLite() *MissionLite {
	return &MissionLite{
		Name:            "Literature survey",
		Description:     "Survey recent publications on CRISPR delivery vectors",
		Goal:            "Produce a survey report of recent CRISPR delivery literature",
		SuccessCriteria: []string{"at least 20 papers reviewed"},
		Inputs: []AssetLite{
			{Name: "search terms", Content: map[string]any{"query": "CRISPR delivery vectors"}},
		},
		Outputs: []AssetLite{
			{Name: "survey report", Subtype: "report"},
		},
	}
}

// proposeAndAcceptMission 走完任务提案+接受，返回任务 ID。
func proposeAndAcceptMission(t *testing.T, svc *StateTransitionService, lite *MissionLite) string {
	t.Helper()
	ctx := context.Background()

	res, err := svc.UpdateState(ctx, TxProposeMission, TransactionData{
		UserID:  "user-1",
		Mission: lite,
	})
	require.NoError(t, err)

	_, err = svc.UpdateState(ctx, TxAcceptMission, TransactionData{
		UserID:    "user-1",
		MissionID: res.EntityID,
	})
	require.NoError(t, err)
	return res.EntityID
}

// missionAssetIDByRole 返回任务内第一个指定角色的资产 ID。
func missionAssetIDByRole(t *testing.T, db *gorm.DB, missionID string, role AssetRole) string {
	t.Helper()

	var rec MissionAssetMap
	require.NoError(t, db.Where("mission_id = ? AND role = ?", missionID, role).First(&rec).Error)
	return rec.AssetID
}

// hopAssetIDByRole 返回跳步内第一个指定角色的资产 ID。
func hopAssetIDByRole(t *testing.T, db *gorm.DB, hopID string, role AssetRole) string {
	t.Helper()

	var rec HopAssetMap
	require.NoError(t, db.Where("hop_id = ? AND role = ?", hopID, role).First(&rec).Error)
	return rec.AssetID
}

// proposeHop 提出并接受一个跳步计划：输入为任务的 input 资产，
// 输出为新建中间资产。返回跳步 ID。
func proposeHop(t *testing.T, svc *StateTransitionService, db *gorm.DB, missionID string, isFinal bool) string {
	t.Helper()
	ctx := context.Background()

	inputID := missionAssetIDByRole(t, db, missionID, RoleInput)
	res, err := svc.UpdateState(ctx, TxProposeHopPlan, TransactionData{
		UserID:    "user-1",
		MissionID: missionID,
		Hop: &HopLite{
			Name:    "Search literature",
			IsFinal: isFinal,
			Inputs:  []string{inputID},
			Output: HopOutputSpec{
				Type:  HopOutputNewAsset,
				Asset: &AssetLite{Name: "raw search results"},
			},
		},
	})
	require.NoError(t, err)

	_, err = svc.UpdateState(ctx, TxAcceptHopPlan, TransactionData{
		UserID: "user-1",
		HopID:  res.EntityID,
	})
	require.NoError(t, err)
	return res.EntityID
}

// singleStepImpl 绑定单个 pubmed_search 步骤：input 资产 → query 参数，
// 声明输出 articles → 跳步输出资产。
func singleStepImpl(inputID, outputID string) []ToolStepLite {
	return []ToolStepLite{
		{
			ToolID: "pubmed_search",
			ParameterMapping: map[string]Mapping{
				"query": AssetFieldMapping(inputID),
			},
			ResultMapping: map[string]Mapping{
				"articles": AssetFieldMapping(outputID),
			},
		},
	}
}

// driveHopToExecuting 提出实现、接受并启动执行，返回首个步骤 ID。
func driveHopToExecuting(t *testing.T, svc *StateTransitionService, db *gorm.DB, hopID string, steps []ToolStepLite) string {
	t.Helper()
	ctx := context.Background()

	_, err := svc.UpdateState(ctx, TxProposeHopImpl, TransactionData{
		UserID:    "user-1",
		HopID:     hopID,
		ToolSteps: steps,
	})
	require.NoError(t, err)

	_, err = svc.UpdateState(ctx, TxAcceptHopImpl, TransactionData{UserID: "user-1", HopID: hopID})
	require.NoError(t, err)

	_, err = svc.UpdateState(ctx, TxExecuteHop, TransactionData{UserID: "user-1", HopID: hopID})
	require.NoError(t, err)

	var step ToolStep
	require.NoError(t, db.Where("hop_id = ? AND sequence_order = 1", hopID).First(&step).Error)
	return step.ID
}

func getMission(t *testing.T, db *gorm.DB, id string) *Mission {
	t.Helper()

	var m Mission
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	return &m
}

func getHop(t *testing.T, db *gorm.DB, id string) *Hop {
	t.Helper()

	var h Hop
	require.NoError(t, db.First(&h, "id = ?", id).Error)
	return &h
}

func getAsset(t *testing.T, db *gorm.DB, id string) *Asset {
	t.Helper()

	var a Asset
	require.NoError(t, db.First(&a, "id = ?", id).Error)
	return &a
}
