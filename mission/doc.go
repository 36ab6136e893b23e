/*
Package mission 实现任务/跳步/工具步骤生命周期状态机与资产数据流契约
——MissionFlow 的编排核心。

# 模型

  - Mission  — 顶层用户批准的研究工作流，声明输出资产
  - Hop      — 任务内一个"规划+实现"的处理步骤，由工具步骤组成
  - ToolStep — 跳步内对某个具名外部工具的一次绑定调用
  - Asset    — 类型化、带状态跟踪的数据工件，按任务或跳步作用域归属，
    在每个作用域内携带角色（input/output/intermediate）

# 两阶段提案协议

每一层都是 propose → accept：任务（awaiting_approval → in_progress）、
跳步计划（hop_plan_proposed → hop_plan_ready）、跳步实现
（hop_impl_proposed → hop_impl_ready）。accept 之前实体不可执行。

# 资产数据流契约

资产只在提案期创建；工具执行只按声明的 result_mapping 原地更新既有
资产（content + ready + 溯源），从不新建。任务完成完全由资产状态推导：
至少一个 output 资产且全部 ready，与跑了多少跳无关。

# 入口

唯一写入口是 StateTransitionService.UpdateState：每次调用在一个数据库
事务内完成一次原子转换，失败整体回滚并抛出携带事务类型的结构化错误。
工具的实际执行由 ToolRunner 在状态机之外驱动，结果经
complete_tool_step 回流。
*/
package mission
