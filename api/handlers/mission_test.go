package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/mission"
	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🧪 Mission Handler 测试
// =============================================================================

type handlerFixture struct {
	db       *gorm.DB
	registry *toolkit.Registry
	service  *mission.StateTransitionService
	mux      *http.ServeMux
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, mission.InitDatabase(db))

	registry, err := toolkit.NewBuiltinRegistry(logger)
	require.NoError(t, err)

	service := mission.NewStateTransitionService(db, registry, mission.ServiceOptions{Logger: logger})
	queries := mission.NewQueries(db, logger)
	runner := mission.NewToolRunner(service, queries, registry, logger)

	mux := http.NewServeMux()
	NewMissionHandler(service, queries, runner, registry, logger).RegisterRoutes(mux)

	return &handlerFixture{db: db, registry: registry, service: service, mux: mux}
}

// do 以 user-1 身份发起请求。
func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", "user-1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

// txEnvelope 解码变更端点的响应包。
type txEnvelope struct {
	Success bool                      `json:"success"`
	Data    mission.TransactionResult `json:"data"`
	Error   *ErrorInfo                `json:"error"`
}

func decodeTx(t *testing.T, w *httptest.ResponseRecorder) txEnvelope {
	t.Helper()

	var env txEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func sampleProposal() mission.MissionLite {
	return mission.MissionLite{
		Name: "Literature survey",
		Goal: "Produce a survey report of recent CRISPR delivery literature",
		Inputs: []mission.AssetLite{
			{Name: "search terms", Content: map[string]any{"query": "CRISPR delivery vectors"}},
		},
		Outputs: []mission.AssetLite{
			{Name: "survey report", Subtype: "report"},
		},
	}
}

// proposeAcceptedMission 通过 HTTP 走完提案+接受，返回任务 ID。
func (f *handlerFixture) proposeAcceptedMission(t *testing.T) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/v1/missions", sampleProposal())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	missionID := decodeTx(t, w).Data.EntityID
	require.NotEmpty(t, missionID)

	w = f.do(t, http.MethodPost, "/v1/missions/"+missionID+"/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return missionID
}

func (f *handlerFixture) missionAssetID(t *testing.T, missionID string, role mission.AssetRole) string {
	t.Helper()

	var rec mission.MissionAssetMap
	require.NoError(t, f.db.Where("mission_id = ? AND role = ?", missionID, role).First(&rec).Error)
	return rec.AssetID
}

func TestMissionHandler_ProposeMission(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/v1/missions", sampleProposal())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeTx(t, w)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data.EntityID)
	assert.Equal(t, string(mission.MissionAwaitingApproval), env.Data.Status)
}

func TestMissionHandler_RequiresUserHeader(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/missions", nil)
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeTx(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrInvalidRequest), env.Error.Code)
}

func TestMissionHandler_GetMissionNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/v1/missions/no-such-mission", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeTx(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrNotFound), env.Error.Code)
}

func TestMissionHandler_InvalidProposalRejected(t *testing.T) {
	f := newHandlerFixture(t)

	// 缺少输出资产
	w := f.do(t, http.MethodPost, "/v1/missions", mission.MissionLite{
		Name: "Incomplete",
		Goal: "no outputs declared",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeTx(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrInvalidProposal), env.Error.Code)
}

func TestMissionHandler_FullLifecycleOverHTTP(t *testing.T) {
	f := newHandlerFixture(t)

	require.NoError(t, f.registry.RegisterHandler("pubmed_search",
		toolkit.HandlerFunc(func(ctx context.Context, in toolkit.ExecutionInput) (*toolkit.ExecutionResult, error) {
			return &toolkit.ExecutionResult{
				Outputs: map[string]any{"articles": []any{"paper-1", "paper-2"}},
			}, nil
		})))

	missionID := f.proposeAcceptedMission(t)
	inputID := f.missionAssetID(t, missionID, mission.RoleInput)
	outputID := f.missionAssetID(t, missionID, mission.RoleOutput)

	// 最终跳步,输出直接写任务输出资产
	w := f.do(t, http.MethodPost, "/v1/missions/"+missionID+"/hops", mission.HopLite{
		Name:    "Search and report",
		IsFinal: true,
		Inputs:  []string{inputID},
		Output: mission.HopOutputSpec{
			Type:           mission.HopOutputExistingAsset,
			MissionAssetID: outputID,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hopID := decodeTx(t, w).Data.EntityID

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/plan/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/steps", ProposeHopImplRequest{
		Steps: []mission.ToolStepLite{
			{
				ToolID: "pubmed_search",
				ParameterMapping: map[string]mission.Mapping{
					"query": mission.AssetFieldMapping(inputID),
				},
				ResultMapping: map[string]mission.Mapping{
					"articles": mission.AssetFieldMapping(outputID),
				},
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/steps/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/execute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var step mission.ToolStep
	require.NoError(t, f.db.Where("hop_id = ? AND sequence_order = 1", hopID).First(&step).Error)

	// 执行步骤:级联完成跳步和任务
	w = f.do(t, http.MethodPost, "/v1/steps/"+step.ID+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeTx(t, w)
	assert.Equal(t, true, env.Data.Metadata["hop_completed"])
	assert.Equal(t, true, env.Data.Metadata["mission_completed"])

	var m mission.Mission
	require.NoError(t, f.db.First(&m, "id = ?", missionID).Error)
	assert.Equal(t, mission.MissionCompleted, m.Status)
}

func TestMissionHandler_ProposeHopImplValidationFailure(t *testing.T) {
	f := newHandlerFixture(t)

	missionID := f.proposeAcceptedMission(t)
	inputID := f.missionAssetID(t, missionID, mission.RoleInput)

	w := f.do(t, http.MethodPost, "/v1/missions/"+missionID+"/hops", mission.HopLite{
		Name:   "Search literature",
		Inputs: []string{inputID},
		Output: mission.HopOutputSpec{
			Type:  mission.HopOutputNewAsset,
			Asset: &mission.AssetLite{Name: "raw search results"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hopID := decodeTx(t, w).Data.EntityID

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/plan/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/steps", ProposeHopImplRequest{
		Steps: []mission.ToolStepLite{
			{
				ToolID:           "no_such_tool",
				ParameterMapping: map[string]mission.Mapping{},
				ResultMapping:    map[string]mission.Mapping{},
			},
		},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeTx(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrPlanValidation), env.Error.Code)

	// 整链拒绝,不留步骤
	var count int64
	require.NoError(t, f.db.Model(&mission.ToolStep{}).Where("hop_id = ?", hopID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMissionHandler_CancelMissionWithReason(t *testing.T) {
	f := newHandlerFixture(t)
	missionID := f.proposeAcceptedMission(t)

	w := f.do(t, http.MethodPost, "/v1/missions/"+missionID+"/cancel", TerminateRequest{
		Reason: "user abandoned the survey",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var m mission.Mission
	require.NoError(t, f.db.First(&m, "id = ?", missionID).Error)
	assert.Equal(t, mission.MissionCancelled, m.Status)
	assert.Equal(t, "user abandoned the survey", m.Metadata["error_message"])
}

func TestMissionHandler_MissionAssetsScopedToOwner(t *testing.T) {
	f := newHandlerFixture(t)
	missionID := f.proposeAcceptedMission(t)

	w := f.do(t, http.MethodGet, "/v1/missions/"+missionID+"/assets?role=output", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Success bool                     `json:"success"`
		Data    []mission.MissionAssetMap `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, mission.RoleOutput, env.Data[0].Role)

	// 其他用户不可见
	req := httptest.NewRequest(http.MethodGet, "/v1/missions/"+missionID+"/assets", nil)
	req.Header.Set("X-User-ID", "user-2")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissionHandler_ListTools(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/v1/tools", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Success bool                 `json:"success"`
		Data    []toolkit.Definition `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data)

	ids := make(map[string]bool, len(env.Data))
	for _, def := range env.Data {
		ids[def.ID] = true
	}
	assert.True(t, ids["pubmed_search"])
	assert.True(t, ids["summarize"])
}

func TestMissionHandler_RunStepWithoutHandler(t *testing.T) {
	f := newHandlerFixture(t)

	missionID := f.proposeAcceptedMission(t)
	inputID := f.missionAssetID(t, missionID, mission.RoleInput)
	outputID := f.missionAssetID(t, missionID, mission.RoleOutput)

	w := f.do(t, http.MethodPost, "/v1/missions/"+missionID+"/hops", mission.HopLite{
		Name:    "Search and report",
		IsFinal: true,
		Inputs:  []string{inputID},
		Output: mission.HopOutputSpec{
			Type:           mission.HopOutputExistingAsset,
			MissionAssetID: outputID,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	hopID := decodeTx(t, w).Data.EntityID

	f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/plan/accept", nil)
	f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/steps", ProposeHopImplRequest{
		Steps: []mission.ToolStepLite{
			{
				ToolID: "pubmed_search",
				ParameterMapping: map[string]mission.Mapping{
					"query": mission.AssetFieldMapping(inputID),
				},
				ResultMapping: map[string]mission.Mapping{
					"articles": mission.AssetFieldMapping(outputID),
				},
			},
		},
	})
	f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/steps/accept", nil)
	f.do(t, http.MethodPost, "/v1/hops/"+hopID+"/execute", nil)

	var step mission.ToolStep
	require.NoError(t, f.db.Where("hop_id = ?", hopID).First(&step).Error)

	w = f.do(t, http.MethodPost, "/v1/steps/"+step.ID+"/run", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeTx(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrToolNotRegistered), env.Error.Code)
}
