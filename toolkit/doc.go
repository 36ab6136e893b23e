// Package toolkit 提供依赖注入的工具注册中心与统一的工具执行契约。
//
// 注册中心在进程启动时显式构造并装载一次（见 NewBuiltinRegistry），
// 之后以只读方式被编排核心查询：计划期校验依赖工具定义声明的
// 参数/输出名称集合，执行期通过 Handler 契约调用具体实现。
// 工具处理器本身（web 检索、PubMed、邮件、抽取等）是可插拔策略，
// 不属于本包。
package toolkit
