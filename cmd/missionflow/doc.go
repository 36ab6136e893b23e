// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 MissionFlow 服务端程序入口。

# 概述

cmd/missionflow 是 MissionFlow 工作流引擎的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 分布式追踪。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）、
    JWTAuth（注入 X-User-ID）、APIKeyAuth（X-API-Key / query 参数）
  - 引擎装配：工具注册表 → 状态机服务 → 工具执行器 → HTTP 处理器
  - 会话集成：Redis 可用时将任务关联到活跃会话，不可用时降级运行
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止限流器 → 关闭 HTTP → 关闭 Metrics → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
