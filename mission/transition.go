package mission

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🎯 状态转换服务（编排核心）
// =============================================================================

// TransactionType 状态机事务类型。
type TransactionType string

const (
	TxProposeMission   TransactionType = "propose_mission"
	TxAcceptMission    TransactionType = "accept_mission"
	TxProposeHopPlan   TransactionType = "propose_hop_plan"
	TxAcceptHopPlan    TransactionType = "accept_hop_plan"
	TxProposeHopImpl   TransactionType = "propose_hop_impl"
	TxAcceptHopImpl    TransactionType = "accept_hop_impl"
	TxExecuteHop       TransactionType = "execute_hop"
	TxCompleteHop      TransactionType = "complete_hop"
	TxCompleteMission  TransactionType = "complete_mission"
	TxCompleteToolStep TransactionType = "complete_tool_step"
	TxFailMission      TransactionType = "fail_mission"
	TxCancelMission    TransactionType = "cancel_mission"
	TxFailHop          TransactionType = "fail_hop"
	TxCancelHop        TransactionType = "cancel_hop"
	TxFailToolStep     TransactionType = "fail_tool_step"
)

// TransactionData 事务入参。不同事务类型只使用其中的一个子集：
//
//	propose_mission:    UserID + Mission
//	accept_mission:     UserID + MissionID
//	propose_hop_plan:   UserID + MissionID + Hop
//	accept_hop_plan:    UserID + HopID
//	propose_hop_impl:   UserID + HopID + ToolSteps
//	accept_hop_impl:    UserID + HopID
//	execute_hop:        UserID + HopID
//	complete_hop:       UserID + HopID
//	complete_mission:   UserID + MissionID
//	complete_tool_step: ToolStepID + ExecutionResult
//	fail/cancel_*:      对应实体 ID（+ ErrorMessage）
type TransactionData struct {
	UserID          string
	MissionID       string
	HopID           string
	ToolStepID      string
	Mission         *MissionLite
	Hop             *HopLite
	ToolSteps       []ToolStepLite
	ExecutionResult *toolkit.ExecutionResult
	ErrorMessage    string
}

// TransactionResult 事务出参。
type TransactionResult struct {
	Success  bool           `json:"success"`
	EntityID string         `json:"entity_id"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SessionLinker 把新任务挂到调用方的活跃会话上。
// propose_mission 事务内调用；实现失败会回滚整个任务创建。
type SessionLinker interface {
	LinkMission(ctx context.Context, userID, missionID string) error
}

// TransitionRecorder 指标挂钩，实现方通常是 prometheus 收集器。
type TransitionRecorder interface {
	RecordTransition(txType string, success bool)
	RecordAssetUpdates(n int)
}

// ServiceOptions 配置状态转换服务。
type ServiceOptions struct {
	Sessions SessionLinker
	Metrics  TransitionRecorder
	Logger   *zap.Logger
}

// StateTransitionService 编排核心：唯一入口 UpdateState 在一个数据库
// 事务内执行一次跨 Mission/Hop/ToolStep/Asset 的原子生命周期转换。
// 服务自身不做进程内加锁：同一子树上的并发由持久化层的事务边界
// 负责（见并发模型）；服务内没有任何挂起点。
type StateTransitionService struct {
	db       *gorm.DB
	registry *toolkit.Registry
	sessions SessionLinker
	metrics  TransitionRecorder
	logger   *zap.Logger
}

// NewStateTransitionService 创建状态转换服务。
func NewStateTransitionService(db *gorm.DB, registry *toolkit.Registry, opts ServiceOptions) *StateTransitionService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateTransitionService{
		db:       db,
		registry: registry,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("component", "state_transition")),
	}
}

// UpdateState 执行一次状态机事务。全部写入要么一起提交要么一起回滚；
// 任何意外错误都会被包装为携带事务类型的结构化错误重新抛出，
// 不允许部分写入或静默的状态破坏。
func (s *StateTransitionService) UpdateState(ctx context.Context, txType TransactionType, data TransactionData) (*TransactionResult, error) {
	var result *TransactionResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		switch txType {
		case TxProposeMission:
			result, err = s.proposeMission(ctx, tx, data)
		case TxAcceptMission:
			result, err = s.acceptMission(ctx, tx, data)
		case TxProposeHopPlan:
			result, err = s.proposeHopPlan(ctx, tx, data)
		case TxAcceptHopPlan:
			result, err = s.acceptHopPlan(ctx, tx, data)
		case TxProposeHopImpl:
			result, err = s.proposeHopImpl(ctx, tx, data)
		case TxAcceptHopImpl:
			result, err = s.acceptHopImpl(ctx, tx, data)
		case TxExecuteHop:
			result, err = s.executeHop(ctx, tx, data)
		case TxCompleteHop:
			result, err = s.completeHop(ctx, tx, data)
		case TxCompleteMission:
			result, err = s.completeMission(ctx, tx, data)
		case TxCompleteToolStep:
			result, err = s.completeToolStep(ctx, tx, data)
		case TxFailMission:
			result, err = s.terminateMission(ctx, tx, data, MissionFailed)
		case TxCancelMission:
			result, err = s.terminateMission(ctx, tx, data, MissionCancelled)
		case TxFailHop:
			result, err = s.terminateHop(ctx, tx, data, HopFailed)
		case TxCancelHop:
			result, err = s.terminateHop(ctx, tx, data, HopCancelled)
		case TxFailToolStep:
			result, err = s.failToolStep(ctx, tx, data)
		default:
			err = types.NewErrorf(types.ErrInvalidRequest, "unknown transaction type %q", string(txType))
		}
		return err
	})

	if s.metrics != nil {
		s.metrics.RecordTransition(string(txType), err == nil)
	}

	if err != nil {
		s.logger.Warn("state transition failed",
			zap.String("transaction", string(txType)),
			zap.Error(err),
		)
		return nil, wrapTransactionError(err, txType)
	}

	s.logger.Info("state transition applied",
		zap.String("transaction", string(txType)),
		zap.String("entity_id", result.EntityID),
		zap.String("status", result.Status),
	)
	return result, nil
}

// wrapTransactionError 保证离开服务的错误都是携带事务类型的结构化错误。
func wrapTransactionError(err error, txType TransactionType) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		if typed.Transaction == "" {
			typed.Transaction = string(txType)
		}
		return typed
	}
	return types.NewError(types.ErrInternalError, err.Error()).
		WithCause(err).
		WithTransaction(string(txType))
}

// ---- 实体装载辅助 ----

func loadMission(ctx context.Context, tx *gorm.DB, userID, id string) (*Mission, error) {
	var m Mission
	err := tx.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "mission %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load mission").WithCause(err)
	}
	if userID != "" && m.UserID != userID {
		return nil, types.NewErrorf(types.ErrNotFound, "mission %s not found", id)
	}
	return &m, nil
}

func loadHop(ctx context.Context, tx *gorm.DB, id string) (*Hop, error) {
	var h Hop
	err := tx.WithContext(ctx).First(&h, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "hop %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load hop").WithCause(err)
	}
	return &h, nil
}

func loadToolStep(ctx context.Context, tx *gorm.DB, id string) (*ToolStep, error) {
	var st ToolStep
	err := tx.WithContext(ctx).First(&st, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "tool step %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load tool step").WithCause(err)
	}
	return &st, nil
}

// requireHopStatus 严格前置状态检查，错误信息点名要求的前置状态。
func requireHopStatus(h *Hop, required HopStatus) error {
	if h.Status != required {
		return types.NewErrorf(types.ErrInvalidTransition,
			"hop %s is %s, required state is %s", h.ID, h.Status, required)
	}
	return nil
}
