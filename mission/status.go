package mission

// MissionStatus 任务（Mission）生命周期状态。
type MissionStatus string

const (
	MissionAwaitingApproval MissionStatus = "awaiting_approval"
	MissionInProgress       MissionStatus = "in_progress"
	MissionCompleted        MissionStatus = "completed"
	MissionFailed           MissionStatus = "failed"
	MissionCancelled        MissionStatus = "cancelled"
)

// Terminal 判断任务是否处于终态。终态后任何转换都是非法的。
func (s MissionStatus) Terminal() bool {
	switch s {
	case MissionCompleted, MissionFailed, MissionCancelled:
		return true
	}
	return false
}

// HopStatus 跳步（Hop）生命周期状态，严格有序。
type HopStatus string

const (
	HopPlanStarted  HopStatus = "hop_plan_started"
	HopPlanProposed HopStatus = "hop_plan_proposed"
	HopPlanReady    HopStatus = "hop_plan_ready"
	HopImplStarted  HopStatus = "hop_impl_started"
	HopImplProposed HopStatus = "hop_impl_proposed"
	HopImplReady    HopStatus = "hop_impl_ready"
	HopExecuting    HopStatus = "executing"
	HopCompleted    HopStatus = "completed"
	HopFailed       HopStatus = "failed"
	HopCancelled    HopStatus = "cancelled"
)

// Terminal 判断跳步是否处于终态。
func (s HopStatus) Terminal() bool {
	switch s {
	case HopCompleted, HopFailed, HopCancelled:
		return true
	}
	return false
}

// ToolStepStatus 工具步骤生命周期状态。
type ToolStepStatus string

const (
	StepProposed       ToolStepStatus = "proposed"
	StepReadyToConfig  ToolStepStatus = "ready_to_configure"
	StepReadyToExecute ToolStepStatus = "ready_to_execute"
	StepExecuting      ToolStepStatus = "executing"
	StepCompleted      ToolStepStatus = "completed"
	StepFailed         ToolStepStatus = "failed"
	StepCancelled      ToolStepStatus = "cancelled"
)

// Terminal 判断步骤是否处于终态。
func (s ToolStepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepCancelled:
		return true
	}
	return false
}

// Completable 判断步骤是否可以被 complete_tool_step 接受。
// 三个前置状态都被容忍：工具执行可能由外部触发，EXECUTING 戳记
// 不一定先落库（乱序完成回调）。观察到的前置状态由完成级联记日志，
// 便于后续收紧。
func (s ToolStepStatus) Completable() bool {
	switch s {
	case StepProposed, StepReadyToExecute, StepExecuting:
		return true
	}
	return false
}

// AssetStatus 资产（Asset）生命周期状态。
type AssetStatus string

const (
	AssetProposed   AssetStatus = "proposed"
	AssetPending    AssetStatus = "pending"
	AssetInProgress AssetStatus = "in_progress"
	AssetReady      AssetStatus = "ready"
	AssetError      AssetStatus = "error"
	AssetExpired    AssetStatus = "expired"
)

// AssetRole 资产在某一作用域内的角色。
// 同一资产在不同作用域可以有不同角色：任务级 intermediate
// 可以同时是跳步级 input。
type AssetRole string

const (
	RoleInput        AssetRole = "input"
	RoleOutput       AssetRole = "output"
	RoleIntermediate AssetRole = "intermediate"
)

// ScopeType 资产归属的聚合类型。
type ScopeType string

const (
	ScopeMission ScopeType = "mission"
	ScopeHop     ScopeType = "hop"
)
