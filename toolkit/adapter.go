package toolkit

import "context"

// ParamValue 是解析完成后传递给工具处理器的单个参数值。
// Type 来自映射的判别标记（asset_field / literal），处理器可据此
// 区分来源，但通常只关心 Value。
type ParamValue struct {
	Value any    `json:"value"`
	Type  string `json:"type"`
}

// ExecutionInput 是工具处理器的统一入参。
type ExecutionInput struct {
	StepID          string                    `json:"step_id"`
	Params          map[string]ParamValue     `json:"params"`
	ResourceConfigs map[string]map[string]any `json:"resource_configs,omitempty"`
}

// ExecutionResult 是工具处理器的统一出参。
// Outputs 按声明的输出名组织；缺失某个已声明的输出名属于软失败，
// 由完成级联按别名表回退后跳过，不会使整个事务失败。
type ExecutionResult struct {
	Outputs  map[string]any `json:"outputs"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Handler 是可插拔的工具处理器契约。具体实现（web 检索、PubMed、
// 邮件、抽取等）由外层注入，引擎只通过该接口调用。
type Handler interface {
	Execute(ctx context.Context, input ExecutionInput) (*ExecutionResult, error)
}

// HandlerFunc 将函数适配为 Handler。
type HandlerFunc func(ctx context.Context, input ExecutionInput) (*ExecutionResult, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, input ExecutionInput) (*ExecutionResult, error) {
	return f(ctx, input)
}
