package mission

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// 🚀 工具步骤执行驱动
// =============================================================================
// 实际的工具执行（网络调用）发生在状态机之外；ToolRunner 负责把
// 参数映射解析成具体值、通过统一处理器契约调用工具，再把结果经
// complete_tool_step / fail_tool_step 回流进状态机。状态机本身
// 从不阻塞等待执行。

// ToolRunRecorder 工具执行指标挂钩。
type ToolRunRecorder interface {
	RecordToolStep(toolID, status string, duration time.Duration)
}

// ToolRunner 单个工具步骤的执行驱动。
type ToolRunner struct {
	service  *StateTransitionService
	queries  *Queries
	registry *toolkit.Registry
	metrics  ToolRunRecorder
	logger   *zap.Logger
}

// NewToolRunner 创建执行驱动。
func NewToolRunner(service *StateTransitionService, queries *Queries, registry *toolkit.Registry, logger *zap.Logger) *ToolRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRunner{
		service:  service,
		queries:  queries,
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_runner")),
	}
}

// WithMetrics 挂接执行时长指标，返回自身便于链式调用。
func (r *ToolRunner) WithMetrics(rec ToolRunRecorder) *ToolRunner {
	r.metrics = rec
	return r
}

// RunStep 解析参数、调用处理器并把结果回流进状态机。
// 处理器异常转换为 fail_tool_step；回流事务的结果原样返回。
func (r *ToolRunner) RunStep(ctx context.Context, stepID string) (*TransactionResult, error) {
	step, err := r.queries.GetToolStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	handler, ok := r.registry.Handler(step.ToolID)
	if !ok {
		return nil, types.NewErrorf(types.ErrToolNotRegistered, "no handler registered for tool %s", step.ToolID)
	}

	input, err := r.resolveInput(ctx, step)
	if err != nil {
		return nil, err
	}

	def, _ := r.registry.Get(step.ToolID)
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, execErr := handler.Execute(ctx, input)
	if r.metrics != nil {
		status := "ok"
		if execErr != nil {
			status = "error"
		}
		r.metrics.RecordToolStep(step.ToolID, status, time.Since(start))
	}
	if execErr != nil {
		r.logger.Warn("tool handler failed",
			zap.String("tool_step_id", step.ID),
			zap.String("tool_id", step.ToolID),
			zap.Error(execErr),
		)
		return r.service.UpdateState(ctx, TxFailToolStep, TransactionData{
			ToolStepID:   step.ID,
			ErrorMessage: execErr.Error(),
		})
	}

	return r.service.UpdateState(ctx, TxCompleteToolStep, TransactionData{
		ToolStepID:      step.ID,
		ExecutionResult: result,
	})
}

// resolveInput 把参数映射解析成处理器入参。
// asset_field 取资产内容（可带字段路径），literal 取内联值，
// discard 在参数侧没有意义、校验已拒绝。
func (r *ToolRunner) resolveInput(ctx context.Context, step *ToolStep) (toolkit.ExecutionInput, error) {
	store := NewAssetStore(r.queries.db, r.logger)
	params := make(map[string]toolkit.ParamValue, len(step.ParameterMapping))

	for name, m := range step.ParameterMapping {
		switch m.Type {
		case MappingAssetField:
			asset, err := store.Get(ctx, m.AssetID)
			if err != nil {
				return toolkit.ExecutionInput{}, err
			}
			value := asset.Content
			if m.Path != "" {
				if obj, ok := value.(map[string]any); ok {
					value = obj[m.Path]
				}
			}
			params[name] = toolkit.ParamValue{Value: value, Type: string(MappingAssetField)}
		case MappingLiteral:
			params[name] = toolkit.ParamValue{Value: m.Value, Type: string(MappingLiteral)}
		default:
			return toolkit.ExecutionInput{}, types.NewErrorf(types.ErrInvalidRequest,
				"parameter %q has unsupported mapping type %q", name, string(m.Type))
		}
	}

	return toolkit.ExecutionInput{
		StepID:          step.ID,
		Params:          params,
		ResourceConfigs: step.ResourceConfigs,
	}, nil
}
