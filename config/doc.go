// Package config 提供 MissionFlow 的统一配置加载。
//
// 配置来源按优先级合并：内置默认值、YAML 配置文件、MISSIONFLOW_ 前缀
// 的环境变量。加载后可通过 Validate 做基本合法性检查。
package config
