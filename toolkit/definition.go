package toolkit

import "time"

// ParamSpec 声明工具的一个输入参数。
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// OutputSpec 声明工具的一个输出。
type OutputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Definition 描述一个可被任务步骤绑定的外部工具。
// 参数与输出的名称集合是计划期校验的依据：parameter_mapping /
// result_mapping 中出现未声明的名称即为校验错误。
type Definition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category,omitempty"`
	Parameters  []ParamSpec   `json:"parameters"`
	Outputs     []OutputSpec  `json:"outputs"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// HasParameter 判断工具是否声明了指定参数名。
func (d Definition) HasParameter(name string) bool {
	for _, p := range d.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// HasOutput 判断工具是否声明了指定输出名。
func (d Definition) HasOutput(name string) bool {
	for _, o := range d.Outputs {
		if o.Name == name {
			return true
		}
	}
	return false
}
