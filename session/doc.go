// Package session 提供基于 Redis 的活跃会话索引。
//
// 任务引擎在 propose_mission 事务内把新任务挂到调用方的活跃会话
// （mission.SessionLinker 契约由本包的 Service 实现）。会话内容本身
// （对话历史、流式 UI）由外层系统负责，这里只维护
// 用户 → 活跃会话 → 任务列表 的索引关系。
package session
