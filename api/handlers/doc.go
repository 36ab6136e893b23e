// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 MissionFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 MissionFlow 所有 HTTP 端点的请求处理逻辑，
包括任务/跳步/工具步骤的生命周期事务、资产查询、健康检查以及
统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - MissionHandler   — 任务生命周期端点（提案/接受/执行/完成/终止）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 状态机事务：所有变更端点委托 StateTransitionService.UpdateState
  - 工具步骤执行：/v1/steps/{id}/run 通过注册的处理器驱动步骤
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
