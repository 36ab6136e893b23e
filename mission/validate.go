package mission

import (
	"fmt"
	"strings"

	"github.com/BaSui01/missionflow/toolkit"
	"github.com/BaSui01/missionflow/types"
)

// =============================================================================
// ✅ 计划期工具链校验
// =============================================================================
// 校验发生在 propose_hop_impl，不在执行期。按步骤顺序模拟一遍
// "可用资产"集合：初始只含跳步的 input 角色资产，每个步骤的
// asset_field 结果映射把对应资产加入集合。引用尚不可用的资产、
// 或使用工具未声明的参数/输出名，都是校验错误。所有错误一次性
// 累积返回，便于规划代理整批修正。

// ValidationIssue 单条校验问题。
type ValidationIssue struct {
	StepIndex int    `json:"step_index"` // 1-based
	ToolID    string `json:"tool_id"`
	Field     string `json:"field"` // 参数名或输出名
	AssetID   string `json:"asset_id,omitempty"`
	Reason    string `json:"reason"`
}

// String 返回可读描述。
func (i ValidationIssue) String() string {
	if i.AssetID != "" {
		return fmt.Sprintf("step %d (%s) %s: %s (asset %s)", i.StepIndex, i.ToolID, i.Field, i.Reason, i.AssetID)
	}
	return fmt.Sprintf("step %d (%s) %s: %s", i.StepIndex, i.ToolID, i.Field, i.Reason)
}

// ValidationError 累积的工具链校验错误。
type ValidationError struct {
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("tool chain validation failed: %s", strings.Join(parts, "; "))
}

// AsTypedError 转换为统一错误类型。
func (e *ValidationError) AsTypedError() *types.Error {
	return types.NewError(types.ErrPlanValidation, e.Error()).WithCause(e)
}

// validateToolChain 对有序步骤列表做计划期校验。
// hopAssets 是跳步的全部资产关联；可用集合以 input 角色播种。
func validateToolChain(steps []ToolStepLite, hopAssets []HopAssetMap, reg *toolkit.Registry) *ValidationError {
	known := make(map[string]bool, len(hopAssets))
	available := make(map[string]bool)
	for _, m := range hopAssets {
		known[m.AssetID] = true
		if m.Role == RoleInput {
			available[m.AssetID] = true
		}
	}

	var issues []ValidationIssue
	for idx, step := range steps {
		stepNo := idx + 1

		def, ok := reg.Get(step.ToolID)
		if !ok {
			issues = append(issues, ValidationIssue{
				StepIndex: stepNo,
				ToolID:    step.ToolID,
				Field:     "tool_id",
				Reason:    "tool is not registered",
			})
			continue
		}

		for name, m := range step.ParameterMapping {
			if !def.HasParameter(name) {
				issues = append(issues, ValidationIssue{
					StepIndex: stepNo,
					ToolID:    step.ToolID,
					Field:     name,
					Reason:    "parameter is not declared by the tool",
				})
			}
			if m.Type != MappingAssetField {
				continue
			}
			switch {
			case !known[m.AssetID]:
				issues = append(issues, ValidationIssue{
					StepIndex: stepNo,
					ToolID:    step.ToolID,
					Field:     name,
					AssetID:   m.AssetID,
					Reason:    "asset is not mapped to this hop",
				})
			case !available[m.AssetID]:
				issues = append(issues, ValidationIssue{
					StepIndex: stepNo,
					ToolID:    step.ToolID,
					Field:     name,
					AssetID:   m.AssetID,
					Reason:    "asset is not yet available at this step",
				})
			}
		}

		for name, m := range step.ResultMapping {
			if !def.HasOutput(name) {
				issues = append(issues, ValidationIssue{
					StepIndex: stepNo,
					ToolID:    step.ToolID,
					Field:     name,
					Reason:    "output is not declared by the tool",
				})
			}
			if m.Type != MappingAssetField {
				continue
			}
			if !known[m.AssetID] {
				issues = append(issues, ValidationIssue{
					StepIndex: stepNo,
					ToolID:    step.ToolID,
					Field:     name,
					AssetID:   m.AssetID,
					Reason:    "asset is not mapped to this hop",
				})
				continue
			}
			// 模拟产出：该资产对后续步骤可用
			available[m.AssetID] = true
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}
