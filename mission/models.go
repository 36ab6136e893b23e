package mission

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// =============================================================================
// 🗂️ 领域模型（GORM 持久化）
// =============================================================================

// Mission 顶层用户批准的研究工作流。
// CurrentHopID 是索引而非持有指针：Mission 与 Hop 互相只存对方的 ID，
// 通过仓储按 ID 解析，避免双向强引用。
type Mission struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	UserID          string         `gorm:"size:64;index;not null" json:"user_id"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	Goal            string         `gorm:"type:text" json:"goal"`
	SuccessCriteria []string       `gorm:"serializer:json;type:text" json:"success_criteria"`
	Status          MissionStatus  `gorm:"size:32;not null;index" json:"status"`
	CurrentHopID    *string        `gorm:"size:36" json:"current_hop_id,omitempty"`
	Metadata        map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`

	Hops      []Hop             `gorm:"foreignKey:MissionID" json:"hops,omitempty"`
	AssetMaps []MissionAssetMap `gorm:"foreignKey:MissionID" json:"asset_maps,omitempty"`
}

// BeforeCreate 分配 UUID 主键。
func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Hop 任务中的一个规划+实现处理步骤。
type Hop struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	MissionID       string         `gorm:"size:36;index;not null" json:"mission_id"`
	SequenceOrder   int            `gorm:"not null" json:"sequence_order"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	Rationale       string         `gorm:"type:text" json:"rationale"`
	SuccessCriteria []string       `gorm:"serializer:json;type:text" json:"success_criteria"`
	Status          HopStatus      `gorm:"size:32;not null;index" json:"status"`
	IsFinal         bool           `gorm:"default:false" json:"is_final"`
	IsResolved      bool           `gorm:"default:false" json:"is_resolved"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata        map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	ToolSteps []ToolStep    `gorm:"foreignKey:HopID" json:"tool_steps,omitempty"`
	AssetMaps []HopAssetMap `gorm:"foreignKey:HopID" json:"asset_maps,omitempty"`
}

// BeforeCreate 分配 UUID 主键。
func (h *Hop) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

// ToolStep 跳步内对某个具名外部工具的一次绑定调用。
// ParameterMapping / ResultMapping 的值是带判别标记的闭合和类型
// （见 Mapping），以 JSON 序列化存储。
type ToolStep struct {
	ID              string                    `gorm:"primaryKey;size:36" json:"id"`
	HopID           string                    `gorm:"size:36;index;not null" json:"hop_id"`
	ToolID          string                    `gorm:"size:64;not null" json:"tool_id"`
	SequenceOrder   int                       `gorm:"not null" json:"sequence_order"`
	Description     string                    `gorm:"type:text" json:"description"`
	ParameterMapping map[string]Mapping       `gorm:"serializer:json;type:text" json:"parameter_mapping"`
	ResultMapping   map[string]Mapping        `gorm:"serializer:json;type:text" json:"result_mapping"`
	ResourceConfigs map[string]map[string]any `gorm:"serializer:json;type:text" json:"resource_configs,omitempty"`
	Status          ToolStepStatus            `gorm:"size:32;not null;index" json:"status"`
	ExecutionResult map[string]any            `gorm:"serializer:json;type:text" json:"execution_result,omitempty"`
	ErrorMessage    string                    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// BeforeCreate 分配 UUID 主键。
func (s *ToolStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Asset 类型化、带状态跟踪的数据工件。
// 身份稳定：工具执行只原地更新 content/status，从不删除或重建，
// 下游引用因此始终有效。
type Asset struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerUserID      string         `gorm:"size:64;index;not null" json:"owner_user_id"`
	Name             string         `gorm:"size:255;not null" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	SchemaDefinition map[string]any `gorm:"serializer:json;type:text" json:"schema_definition,omitempty"`
	Subtype          string         `gorm:"size:64" json:"subtype,omitempty"`
	ScopeType        ScopeType      `gorm:"size:16;index:idx_asset_scope;not null" json:"scope_type"`
	ScopeID          string         `gorm:"size:36;index:idx_asset_scope;not null" json:"scope_id"`
	Status           AssetStatus    `gorm:"size:32;not null;index" json:"status"`
	Role             AssetRole      `gorm:"size:16;not null" json:"role"`
	Content          any            `gorm:"serializer:json;type:text" json:"content,omitempty"`
	ContentSummary   string         `gorm:"type:text" json:"content_summary,omitempty"`
	Metadata         map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// BeforeCreate 分配 UUID 主键。
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// MissionAssetMap 任务与资产的多对多关联，携带任务作用域内的角色。
type MissionAssetMap struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MissionID string    `gorm:"size:36;uniqueIndex:idx_mission_asset;not null" json:"mission_id"`
	AssetID   string    `gorm:"size:36;uniqueIndex:idx_mission_asset;not null" json:"asset_id"`
	Role      AssetRole `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`

	Asset *Asset `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// TableName 指定表名。
func (MissionAssetMap) TableName() string { return "mission_assets" }

// HopAssetMap 跳步与资产的多对多关联，携带跳步作用域内的角色。
type HopAssetMap struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	HopID     string    `gorm:"size:36;uniqueIndex:idx_hop_asset;not null" json:"hop_id"`
	AssetID   string    `gorm:"size:36;uniqueIndex:idx_hop_asset;not null" json:"asset_id"`
	Role      AssetRole `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`

	Asset *Asset `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// TableName 指定表名。
func (HopAssetMap) TableName() string { return "hop_assets" }
