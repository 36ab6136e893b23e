package mission

import "github.com/BaSui01/missionflow/types"

// =============================================================================
// 📨 提案契约（规划代理 → 状态机）
// =============================================================================
// Lite 结构是语言层的已验证数据载体，不是持久化模型。外部规划代理
// （LLM，域外）产出这些结构，调用方把它们连同事务类型交给
// StateTransitionService。

// AssetLite 提案中的资产声明。
type AssetLite struct {
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	SchemaDefinition map[string]any `json:"schema_definition,omitempty"`
	Subtype          string         `json:"subtype,omitempty"`
	Content          any            `json:"content,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// MissionLite 任务提案。
type MissionLite struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Goal            string         `json:"goal"`
	SuccessCriteria []string       `json:"success_criteria,omitempty"`
	Inputs          []AssetLite    `json:"inputs,omitempty"`
	Outputs         []AssetLite    `json:"outputs"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate 检查任务提案的结构合法性。
func (m *MissionLite) Validate() error {
	if m.Name == "" {
		return types.NewError(types.ErrInvalidProposal, "mission name is required")
	}
	if len(m.Outputs) == 0 {
		return types.NewError(types.ErrInvalidProposal, "mission must declare at least one output asset")
	}
	for _, a := range append(append([]AssetLite{}, m.Inputs...), m.Outputs...) {
		if a.Name == "" {
			return types.NewError(types.ErrInvalidProposal, "asset name is required")
		}
	}
	return nil
}

// HopOutputType 跳步输出声明的判别标记。
type HopOutputType string

const (
	// HopOutputNewAsset 提案声明一个全新的输出资产，将在任务作用域创建。
	HopOutputNewAsset HopOutputType = "new_asset"
	// HopOutputExistingAsset 提案引用一个既有的任务作用域资产作为输出。
	HopOutputExistingAsset HopOutputType = "existing_asset"
)

// HopOutputSpec 跳步输出声明，闭合和类型。
type HopOutputSpec struct {
	Type           HopOutputType `json:"type"`
	Asset          *AssetLite    `json:"asset,omitempty"`
	MissionAssetID string        `json:"mission_asset_id,omitempty"`
}

// Validate 检查输出声明的结构合法性。
func (o HopOutputSpec) Validate() error {
	switch o.Type {
	case HopOutputNewAsset:
		if o.Asset == nil || o.Asset.Name == "" {
			return types.NewError(types.ErrInvalidProposal, "new_asset output requires an asset declaration")
		}
		return nil
	case HopOutputExistingAsset:
		if o.MissionAssetID == "" {
			return types.NewError(types.ErrInvalidProposal, "existing_asset output requires mission_asset_id")
		}
		return nil
	default:
		return types.NewErrorf(types.ErrInvalidProposal, "unknown hop output type %q", string(o.Type))
	}
}

// HopLite 跳步计划提案。
type HopLite struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Rationale       string         `json:"rationale,omitempty"`
	IsFinal         bool           `json:"is_final"`
	Inputs          []string       `json:"inputs,omitempty"`
	Output          HopOutputSpec  `json:"output"`
	SuccessCriteria []string       `json:"success_criteria,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate 检查跳步提案的结构合法性。
func (h *HopLite) Validate() error {
	if h.Name == "" {
		return types.NewError(types.ErrInvalidProposal, "hop name is required")
	}
	return h.Output.Validate()
}

// ToolStepLite 工具步骤提案。序号由列表位置决定，不在提案中出现。
type ToolStepLite struct {
	ToolID           string                    `json:"tool_id"`
	Description      string                    `json:"description,omitempty"`
	ParameterMapping map[string]Mapping        `json:"parameter_mapping"`
	ResultMapping    map[string]Mapping        `json:"result_mapping"`
	ResourceConfigs  map[string]map[string]any `json:"resource_configs,omitempty"`
}

// Validate 检查工具步骤提案的结构合法性（映射结构，不含可用性检查）。
func (s *ToolStepLite) Validate() error {
	if s.ToolID == "" {
		return types.NewError(types.ErrInvalidProposal, "tool_id is required")
	}
	for name, m := range s.ParameterMapping {
		if err := m.Validate(); err != nil {
			return types.NewErrorf(types.ErrInvalidProposal, "parameter %q: %v", name, err)
		}
	}
	for name, m := range s.ResultMapping {
		if err := m.Validate(); err != nil {
			return types.NewErrorf(types.ErrInvalidProposal, "result %q: %v", name, err)
		}
	}
	return nil
}
