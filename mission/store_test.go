package mission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/missionflow/types"
)

func TestAssetStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	ctx := context.Background()

	asset := &Asset{
		Name:        "search terms",
		Subtype:     "data",
		OwnerUserID: "user-1",
		ScopeType:   ScopeMission,
		ScopeID:     "mission-1",
		Role:        RoleInput,
		Status:      AssetPending,
		Content:     map[string]any{"query": "CRISPR"},
	}
	require.NoError(t, store.Create(ctx, asset))
	require.NotEmpty(t, asset.ID)

	got, err := store.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "search terms", got.Name)
	assert.Equal(t, map[string]any{"query": "CRISPR"}, got.Content)

	_, err = store.Get(ctx, "missing")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestAssetStore_GetOwned(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	ctx := context.Background()

	asset := &Asset{Name: "report", OwnerUserID: "user-1", ScopeType: ScopeMission, ScopeID: "m", Role: RoleOutput, Status: AssetPending}
	require.NoError(t, store.Create(ctx, asset))

	_, err := store.GetOwned(ctx, "user-1", asset.ID)
	assert.NoError(t, err)

	// 他人资产以 not found 掩盖，避免泄露存在性
	_, err = store.GetOwned(ctx, "user-2", asset.ID)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestAssetStore_PromoteProposed(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	ctx := context.Background()

	proposed := &Asset{Name: "a", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m", Role: RoleOutput, Status: AssetProposed}
	ready := &Asset{Name: "b", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m", Role: RoleInput, Status: AssetReady}
	require.NoError(t, store.Create(ctx, proposed))
	require.NoError(t, store.Create(ctx, ready))

	require.NoError(t, store.PromoteProposed(ctx, []string{proposed.ID, ready.ID}))

	got, err := store.Get(ctx, proposed.ID)
	require.NoError(t, err)
	assert.Equal(t, AssetPending, got.Status)

	// 非 proposed 的不动
	got, err = store.Get(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, AssetReady, got.Status)

	assert.NoError(t, store.PromoteProposed(ctx, nil))
}

func TestAssetStore_ApplyResultAppendsProvenance(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	ctx := context.Background()

	asset := &Asset{Name: "raw results", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m", Role: RoleIntermediate, Status: AssetPending}
	require.NoError(t, store.Create(ctx, asset))

	now := time.Now().UTC()
	require.NoError(t, store.ApplyResult(ctx, asset.ID, "first pass", Provenance{
		ToolID: "pubmed_search", ToolStepID: "step-1", OutputName: "articles", Timestamp: now,
	}))
	require.NoError(t, store.ApplyResult(ctx, asset.ID, "second pass", Provenance{
		ToolID: "summarize", ToolStepID: "step-2", OutputName: "summary", Timestamp: now,
	}))

	got, err := store.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "second pass", got.Content)
	assert.Equal(t, AssetReady, got.Status)

	history, ok := got.Metadata["provenance"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)

	err = store.ApplyResult(ctx, "missing", "x", Provenance{ToolID: "extract"})
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestAssetStore_ListByScope(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		require.NoError(t, store.Create(ctx, &Asset{
			Name: name, OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m-1", Role: RoleInput, Status: AssetPending,
		}))
	}
	require.NoError(t, store.Create(ctx, &Asset{
		Name: "other", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m-2", Role: RoleInput, Status: AssetPending,
	}))

	assets, err := store.ListByScope(ctx, ScopeMission, "m-1")
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestAssetMapper_AttachAndQuery(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	mapper := NewAssetMapper(db, zaptest.NewLogger(t))
	ctx := context.Background()

	input := &Asset{Name: "in", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m-1", Role: RoleInput, Status: AssetPending}
	output := &Asset{Name: "out", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m-1", Role: RoleOutput, Status: AssetProposed}
	require.NoError(t, store.Create(ctx, input))
	require.NoError(t, store.Create(ctx, output))

	require.NoError(t, mapper.AttachToMission(ctx, "m-1", input.ID, RoleInput))
	require.NoError(t, mapper.AttachToMission(ctx, "m-1", output.ID, RoleOutput))

	// 同一 (mission, asset) 重复关联被唯一索引拒绝
	assert.Error(t, mapper.AttachToMission(ctx, "m-1", input.ID, RoleOutput))

	all, err := mapper.MissionAssets(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "in", all[0].Asset.Name)

	outs, err := mapper.MissionAssetsByRole(ctx, "m-1", RoleOutput)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, output.ID, outs[0].AssetID)

	rec, err := mapper.MissionAsset(ctx, "m-1", output.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleOutput, rec.Role)

	_, err = mapper.MissionAsset(ctx, "m-1", "missing")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestAssetMapper_DualRoleAcrossScopes(t *testing.T) {
	db := setupTestDB(t)
	store := NewAssetStore(db, zaptest.NewLogger(t))
	mapper := NewAssetMapper(db, zaptest.NewLogger(t))
	ctx := context.Background()

	// 同一资产在任务里是 intermediate，在跳步里是 output
	asset := &Asset{Name: "raw", OwnerUserID: "u", ScopeType: ScopeMission, ScopeID: "m-1", Role: RoleIntermediate, Status: AssetProposed}
	require.NoError(t, store.Create(ctx, asset))

	require.NoError(t, mapper.AttachToMission(ctx, "m-1", asset.ID, RoleIntermediate))
	require.NoError(t, mapper.AttachToHop(ctx, "h-1", asset.ID, RoleOutput))

	hopMaps, err := mapper.HopAssets(ctx, "h-1")
	require.NoError(t, err)
	require.Len(t, hopMaps, 1)
	assert.Equal(t, RoleOutput, hopMaps[0].Role)

	missionRec, err := mapper.MissionAsset(ctx, "m-1", asset.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleIntermediate, missionRec.Role)
}
