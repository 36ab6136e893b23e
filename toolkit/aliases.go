package toolkit

// AliasTable 记录各工具的输出名回退映射：声明名 → 处理器实际返回名。
// 个别工具处理器的输出键与定义声明不一致（历史遗留），完成级联在
// 声明名缺失时按本表做一次回退重查，之后才按软失败跳过。
// 表是显式枚举的，禁止在消费侧做任何模糊字符串匹配。
type AliasTable map[string]map[string]string

// DefaultAliases 返回内置别名表。
func DefaultAliases() AliasTable {
	return AliasTable{
		"web_search": {
			"search_results": "results",
		},
		"pubmed_search": {
			"articles": "results",
		},
		"email_search": {
			"emails": "messages",
		},
	}
}

// Resolve 返回 declared 在 toolID 下的回退名。
func (t AliasTable) Resolve(toolID, declared string) (string, bool) {
	byTool, ok := t[toolID]
	if !ok {
		return "", false
	}
	actual, ok := byTool[declared]
	return actual, ok
}
