package handlers

import (
	"errors"
	"net/http"

	"github.com/BaSui01/missionflow/mission"
	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 Mission 生命周期 Handler
// =============================================================================

// MissionHandler 把状态机事务暴露为 REST 端点。所有变更端点都委托给
// StateTransitionService.UpdateState，读端点走 Queries。
type MissionHandler struct {
	service  *mission.StateTransitionService
	queries  *mission.Queries
	runner   *mission.ToolRunner
	registry *toolkit.Registry
	logger   *zap.Logger
}

// NewMissionHandler creates a mission lifecycle handler.
func NewMissionHandler(
	service *mission.StateTransitionService,
	queries *mission.Queries,
	runner *mission.ToolRunner,
	registry *toolkit.Registry,
	logger *zap.Logger,
) *MissionHandler {
	return &MissionHandler{
		service:  service,
		queries:  queries,
		runner:   runner,
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes mounts all mission endpoints on the given mux.
func (h *MissionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/missions", h.HandleProposeMission)
	mux.HandleFunc("GET /v1/missions", h.HandleListMissions)
	mux.HandleFunc("GET /v1/missions/{id}", h.HandleGetMission)
	mux.HandleFunc("POST /v1/missions/{id}/accept", h.HandleAcceptMission)
	mux.HandleFunc("POST /v1/missions/{id}/complete", h.HandleCompleteMission)
	mux.HandleFunc("POST /v1/missions/{id}/fail", h.HandleFailMission)
	mux.HandleFunc("POST /v1/missions/{id}/cancel", h.HandleCancelMission)
	mux.HandleFunc("GET /v1/missions/{id}/assets", h.HandleMissionAssets)
	mux.HandleFunc("POST /v1/missions/{id}/hops", h.HandleProposeHopPlan)

	mux.HandleFunc("GET /v1/hops/{id}", h.HandleGetHop)
	mux.HandleFunc("POST /v1/hops/{id}/plan/accept", h.HandleAcceptHopPlan)
	mux.HandleFunc("POST /v1/hops/{id}/steps", h.HandleProposeHopImpl)
	mux.HandleFunc("POST /v1/hops/{id}/steps/accept", h.HandleAcceptHopImpl)
	mux.HandleFunc("POST /v1/hops/{id}/execute", h.HandleExecuteHop)
	mux.HandleFunc("POST /v1/hops/{id}/complete", h.HandleCompleteHop)
	mux.HandleFunc("POST /v1/hops/{id}/fail", h.HandleFailHop)
	mux.HandleFunc("POST /v1/hops/{id}/cancel", h.HandleCancelHop)

	mux.HandleFunc("GET /v1/steps/{id}", h.HandleGetToolStep)
	mux.HandleFunc("POST /v1/steps/{id}/run", h.HandleRunToolStep)
	mux.HandleFunc("POST /v1/steps/{id}/complete", h.HandleCompleteToolStep)
	mux.HandleFunc("POST /v1/steps/{id}/fail", h.HandleFailToolStep)

	mux.HandleFunc("GET /v1/tools", h.HandleListTools)
}

// =============================================================================
// 📦 请求/响应体
// =============================================================================

// TerminateRequest carries the optional failure or cancellation reason.
type TerminateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ProposeHopImplRequest carries the proposed tool chain for a hop.
type ProposeHopImplRequest struct {
	Steps []mission.ToolStepLite `json:"steps"`
}

// CompleteToolStepRequest carries the execution result reported by an
// out-of-band tool run.
type CompleteToolStepRequest struct {
	Result toolkit.ExecutionResult `json:"result"`
}

// =============================================================================
// 🎯 Mission 端点
// =============================================================================

// HandleProposeMission proposes a new mission with its input/output assets
// @Summary Propose mission
// @Tags mission
// @Accept json
// @Produce json
// @Param request body mission.MissionLite true "Mission proposal"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Router /v1/missions [post]
func (h *MissionHandler) HandleProposeMission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var proposal mission.MissionLite
	if err := DecodeJSONBody(w, r, &proposal, h.logger); err != nil {
		return
	}

	h.transition(w, r, mission.TxProposeMission, mission.TransactionData{
		UserID:  userID,
		Mission: &proposal,
	})
}

// HandleListMissions lists the caller's missions, optionally by status
// @Summary List missions
// @Tags mission
// @Produce json
// @Param status query string false "Mission status filter"
// @Success 200 {object} Response{data=[]mission.Mission}
// @Router /v1/missions [get]
func (h *MissionHandler) HandleListMissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	status := mission.MissionStatus(r.URL.Query().Get("status"))
	missions, err := h.queries.ListMissions(r.Context(), userID, status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, missions)
}

// HandleGetMission returns a mission with its hops, steps and asset bindings
// @Summary Get mission
// @Tags mission
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} Response{data=mission.Mission}
// @Failure 404 {object} Response
// @Router /v1/missions/{id} [get]
func (h *MissionHandler) HandleGetMission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	m, err := h.queries.GetMission(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, m)
}

// HandleAcceptMission accepts a proposed mission
// @Summary Accept mission
// @Tags mission
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Router /v1/missions/{id}/accept [post]
func (h *MissionHandler) HandleAcceptMission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.transition(w, r, mission.TxAcceptMission, mission.TransactionData{
		UserID:    userID,
		MissionID: r.PathValue("id"),
	})
}

// HandleCompleteMission explicitly completes an in-progress mission
// @Summary Complete mission
// @Tags mission
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Failure 409 {object} Response "Output assets not ready"
// @Router /v1/missions/{id}/complete [post]
func (h *MissionHandler) HandleCompleteMission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.transition(w, r, mission.TxCompleteMission, mission.TransactionData{
		UserID:    userID,
		MissionID: r.PathValue("id"),
	})
}

// HandleFailMission marks a mission as failed
// @Summary Fail mission
// @Tags mission
// @Router /v1/missions/{id}/fail [post]
func (h *MissionHandler) HandleFailMission(w http.ResponseWriter, r *http.Request) {
	h.terminateMission(w, r, mission.TxFailMission)
}

// HandleCancelMission cancels a mission
// @Summary Cancel mission
// @Tags mission
// @Router /v1/missions/{id}/cancel [post]
func (h *MissionHandler) HandleCancelMission(w http.ResponseWriter, r *http.Request) {
	h.terminateMission(w, r, mission.TxCancelMission)
}

func (h *MissionHandler) terminateMission(w http.ResponseWriter, r *http.Request, txType mission.TransactionType) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req TerminateRequest
	if r.ContentLength > 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	h.transition(w, r, txType, mission.TransactionData{
		UserID:       userID,
		MissionID:    r.PathValue("id"),
		ErrorMessage: req.Reason,
	})
}

// HandleMissionAssets lists a mission's asset bindings, optionally by role
// @Summary List mission assets
// @Tags mission
// @Produce json
// @Param id path string true "Mission ID"
// @Param role query string false "Asset role filter (input/output/intermediate)"
// @Success 200 {object} Response{data=[]mission.MissionAssetMap}
// @Router /v1/missions/{id}/assets [get]
func (h *MissionHandler) HandleMissionAssets(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	missionID := r.PathValue("id")
	// 先做归属检查,避免跨用户枚举资产
	if _, err := h.queries.GetMission(r.Context(), userID, missionID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	role := mission.AssetRole(r.URL.Query().Get("role"))
	maps, err := h.queries.MissionAssets(r.Context(), missionID, role)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, maps)
}

// =============================================================================
// 🎯 Hop 端点
// =============================================================================

// HandleProposeHopPlan proposes the next hop for a mission
// @Summary Propose hop plan
// @Tags hop
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param request body mission.HopLite true "Hop proposal"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Router /v1/missions/{id}/hops [post]
func (h *MissionHandler) HandleProposeHopPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var proposal mission.HopLite
	if err := DecodeJSONBody(w, r, &proposal, h.logger); err != nil {
		return
	}

	h.transition(w, r, mission.TxProposeHopPlan, mission.TransactionData{
		UserID:    userID,
		MissionID: r.PathValue("id"),
		Hop:       &proposal,
	})
}

// HandleGetHop returns a hop with its tool steps and asset bindings
// @Summary Get hop
// @Tags hop
// @Produce json
// @Param id path string true "Hop ID"
// @Success 200 {object} Response{data=mission.Hop}
// @Router /v1/hops/{id} [get]
func (h *MissionHandler) HandleGetHop(w http.ResponseWriter, r *http.Request) {
	hop, err := h.queries.GetHop(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, hop)
}

// HandleAcceptHopPlan accepts a proposed hop plan
// @Summary Accept hop plan
// @Tags hop
// @Router /v1/hops/{id}/plan/accept [post]
func (h *MissionHandler) HandleAcceptHopPlan(w http.ResponseWriter, r *http.Request) {
	h.hopTransition(w, r, mission.TxAcceptHopPlan)
}

// HandleProposeHopImpl proposes the tool chain implementing a hop.
// The whole chain is validated against the tool registry; any issue
// rejects the proposal wholesale with the full issue list
// @Summary Propose hop implementation
// @Tags hop
// @Accept json
// @Produce json
// @Param id path string true "Hop ID"
// @Param request body ProposeHopImplRequest true "Tool chain proposal"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Failure 422 {object} Response "Tool chain validation failed"
// @Router /v1/hops/{id}/steps [post]
func (h *MissionHandler) HandleProposeHopImpl(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req ProposeHopImplRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Steps) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "steps must not be empty", h.logger)
		return
	}

	h.transition(w, r, mission.TxProposeHopImpl, mission.TransactionData{
		UserID:    userID,
		HopID:     r.PathValue("id"),
		ToolSteps: req.Steps,
	})
}

// HandleAcceptHopImpl accepts a proposed hop implementation
// @Summary Accept hop implementation
// @Tags hop
// @Router /v1/hops/{id}/steps/accept [post]
func (h *MissionHandler) HandleAcceptHopImpl(w http.ResponseWriter, r *http.Request) {
	h.hopTransition(w, r, mission.TxAcceptHopImpl)
}

// HandleExecuteHop starts executing an accepted hop
// @Summary Execute hop
// @Tags hop
// @Router /v1/hops/{id}/execute [post]
func (h *MissionHandler) HandleExecuteHop(w http.ResponseWriter, r *http.Request) {
	h.hopTransition(w, r, mission.TxExecuteHop)
}

// HandleCompleteHop explicitly completes an executing hop
// @Summary Complete hop
// @Tags hop
// @Router /v1/hops/{id}/complete [post]
func (h *MissionHandler) HandleCompleteHop(w http.ResponseWriter, r *http.Request) {
	h.hopTransition(w, r, mission.TxCompleteHop)
}

// HandleFailHop marks a hop as failed
// @Summary Fail hop
// @Tags hop
// @Router /v1/hops/{id}/fail [post]
func (h *MissionHandler) HandleFailHop(w http.ResponseWriter, r *http.Request) {
	h.terminateHop(w, r, mission.TxFailHop)
}

// HandleCancelHop cancels a hop
// @Summary Cancel hop
// @Tags hop
// @Router /v1/hops/{id}/cancel [post]
func (h *MissionHandler) HandleCancelHop(w http.ResponseWriter, r *http.Request) {
	h.terminateHop(w, r, mission.TxCancelHop)
}

func (h *MissionHandler) hopTransition(w http.ResponseWriter, r *http.Request, txType mission.TransactionType) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.transition(w, r, txType, mission.TransactionData{
		UserID: userID,
		HopID:  r.PathValue("id"),
	})
}

func (h *MissionHandler) terminateHop(w http.ResponseWriter, r *http.Request, txType mission.TransactionType) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req TerminateRequest
	if r.ContentLength > 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	h.transition(w, r, txType, mission.TransactionData{
		UserID:       userID,
		HopID:        r.PathValue("id"),
		ErrorMessage: req.Reason,
	})
}

// =============================================================================
// 🎯 ToolStep 端点
// =============================================================================

// HandleGetToolStep returns a tool step
// @Summary Get tool step
// @Tags step
// @Produce json
// @Param id path string true "Tool step ID"
// @Success 200 {object} Response{data=mission.ToolStep}
// @Router /v1/steps/{id} [get]
func (h *MissionHandler) HandleGetToolStep(w http.ResponseWriter, r *http.Request) {
	step, err := h.queries.GetToolStep(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, step)
}

// HandleRunToolStep executes a tool step through its registered handler
// and feeds the result back into the state machine
// @Summary Run tool step
// @Tags step
// @Produce json
// @Param id path string true "Tool step ID"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Failure 422 {object} Response "No handler registered"
// @Router /v1/steps/{id}/run [post]
func (h *MissionHandler) HandleRunToolStep(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunStep(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// HandleCompleteToolStep reports an out-of-band execution result for a step.
// Completion is tolerated from proposed and ready states; the prior
// status is recorded in the transaction metadata
// @Summary Complete tool step
// @Tags step
// @Accept json
// @Produce json
// @Param id path string true "Tool step ID"
// @Param request body CompleteToolStepRequest true "Execution result"
// @Success 200 {object} Response{data=mission.TransactionResult}
// @Router /v1/steps/{id}/complete [post]
func (h *MissionHandler) HandleCompleteToolStep(w http.ResponseWriter, r *http.Request) {
	var req CompleteToolStepRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	h.transition(w, r, mission.TxCompleteToolStep, mission.TransactionData{
		ToolStepID:      r.PathValue("id"),
		ExecutionResult: &req.Result,
	})
}

// HandleFailToolStep marks a tool step as failed
// @Summary Fail tool step
// @Tags step
// @Router /v1/steps/{id}/fail [post]
func (h *MissionHandler) HandleFailToolStep(w http.ResponseWriter, r *http.Request) {
	var req TerminateRequest
	if r.ContentLength > 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	h.transition(w, r, mission.TxFailToolStep, mission.TransactionData{
		ToolStepID:   r.PathValue("id"),
		ErrorMessage: req.Reason,
	})
}

// HandleListTools lists the registered tool definitions
// @Summary List tools
// @Tags tool
// @Produce json
// @Success 200 {object} Response{data=[]toolkit.Definition}
// @Router /v1/tools [get]
func (h *MissionHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.registry.List())
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// transition 执行一次状态机事务并写出结果。
func (h *MissionHandler) transition(w http.ResponseWriter, r *http.Request, txType mission.TransactionType, data mission.TransactionData) {
	result, err := h.service.UpdateState(r.Context(), txType, data)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// requireUser 从 X-User-ID 头提取调用方身份。所有任务作用域端点都要求。
func (h *MissionHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "X-User-ID header is required", h.logger)
		return "", false
	}
	return userID, true
}

func (h *MissionHandler) writeDomainError(w http.ResponseWriter, err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		WriteError(w, typed, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, err.Error()).WithCause(err), h.logger)
}
