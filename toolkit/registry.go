package toolkit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ====== 实现：Registry ======

// Registry 是显式构造、依赖注入的工具注册中心。
// 进程启动时构造一次，之后只读查询（Get / Has / List）。
// 工具定义与处理器分开注册：定义用于计划期校验，处理器用于实际执行，
// 只有定义而没有处理器的工具可以被规划但不能被本进程执行。
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	handlers map[string]Handler
	aliases  AliasTable
	logger   *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
		aliases:  DefaultAliases(),
		logger:   logger,
	}
}

// Register 注册工具定义。
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.ID == "" {
		return fmt.Errorf("tool id is required")
	}
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("tool %s already registered", def.ID)
	}

	// 设置默认超时
	if def.Timeout == 0 {
		def.Timeout = 30 * time.Second
	}

	r.defs[def.ID] = def
	r.logger.Info("tool registered",
		zap.String("tool_id", def.ID),
		zap.Int("parameters", len(def.Parameters)),
		zap.Int("outputs", len(def.Outputs)),
	)
	return nil
}

// RegisterHandler 为已注册的工具定义绑定处理器。
func (r *Registry) RegisterHandler(toolID string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[toolID]; !exists {
		return fmt.Errorf("tool %s not registered", toolID)
	}
	r.handlers[toolID] = h
	return nil
}

// Get 返回工具定义。
func (r *Registry) Get(toolID string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[toolID]
	return def, ok
}

// Handler 返回工具处理器。
func (r *Registry) Handler(toolID string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[toolID]
	return h, ok
}

// Has 判断工具是否已注册。
func (r *Registry) Has(toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[toolID]
	return ok
}

// List 返回全部工具定义。
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// ResolveOutputAlias 按别名表解析工具输出名的回退名称。
// 声明名在执行结果中缺失时，完成级联用该回退名再查一次。
func (r *Registry) ResolveOutputAlias(toolID, declared string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aliases.Resolve(toolID, declared)
}
