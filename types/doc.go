// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 MissionFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 mission、toolkit、
session、api 等上层模块提供统一的类型契约。所有跨包共享的错误码与
结构化错误类型均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、
    Transaction 标记（标识失败的状态机事务类型）

# 错误分类

  - 状态机错误     — INVALID_TRANSITION / NOT_FOUND / PLAN_VALIDATION / INVALID_PROPOSAL
  - 工具执行错误   — TOOL_NOT_REGISTERED / TOOL_EXECUTION / TOOL_TIMEOUT
  - 基础设施错误   — INVALID_REQUEST / SESSION_UNAVAILABLE / DATABASE / INTERNAL_ERROR
*/
package types
