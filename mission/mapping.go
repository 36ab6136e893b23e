package mission

import (
	"fmt"

	"github.com/BaSui01/missionflow/types"
)

// MappingType 参数/结果映射的判别标记。
type MappingType string

const (
	// MappingAssetField 绑定到一个既有资产（可带字段路径）。
	MappingAssetField MappingType = "asset_field"
	// MappingLiteral 内联字面量值。
	MappingLiteral MappingType = "literal"
	// MappingDiscard 显式丢弃某个工具输出。
	MappingDiscard MappingType = "discard"
)

// Mapping 是参数/结果映射的闭合和类型，带显式判别标记。
// 消费侧必须对 Type 做穷尽分支；未知标记一律拒绝。
//
//   - asset_field: AssetID 必填，Path 可选（指向资产内容中的字段）
//   - literal:     Value 必填
//   - discard:     仅对 result_mapping 有意义
type Mapping struct {
	Type    MappingType `json:"type"`
	AssetID string      `json:"asset_id,omitempty"`
	Path    string      `json:"path,omitempty"`
	Value   any         `json:"value,omitempty"`
}

// AssetFieldMapping 构造 asset_field 映射。
func AssetFieldMapping(assetID string) Mapping {
	return Mapping{Type: MappingAssetField, AssetID: assetID}
}

// LiteralMapping 构造 literal 映射。
func LiteralMapping(value any) Mapping {
	return Mapping{Type: MappingLiteral, Value: value}
}

// DiscardMapping 构造 discard 映射。
func DiscardMapping() Mapping {
	return Mapping{Type: MappingDiscard}
}

// Validate 检查映射自身的结构合法性。
func (m Mapping) Validate() error {
	switch m.Type {
	case MappingAssetField:
		if m.AssetID == "" {
			return types.NewError(types.ErrInvalidProposal, "asset_field mapping requires asset_id")
		}
		return nil
	case MappingLiteral:
		return nil
	case MappingDiscard:
		return nil
	default:
		return types.NewErrorf(types.ErrInvalidProposal, "unknown mapping type %q", string(m.Type))
	}
}

// String 返回调试用描述。
func (m Mapping) String() string {
	switch m.Type {
	case MappingAssetField:
		if m.Path != "" {
			return fmt.Sprintf("asset_field(%s#%s)", m.AssetID, m.Path)
		}
		return fmt.Sprintf("asset_field(%s)", m.AssetID)
	case MappingLiteral:
		return fmt.Sprintf("literal(%v)", m.Value)
	case MappingDiscard:
		return "discard"
	}
	return fmt.Sprintf("unknown(%s)", string(m.Type))
}
