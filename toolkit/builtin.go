package toolkit

import (
	"time"

	"go.uber.org/zap"
)

// BuiltinDefinitions 返回引擎默认工具集的定义。
// 处理器由外层按部署环境注入，这里只声明计划期校验所需的契约。
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			ID:          "web_search",
			Name:        "Web Search",
			Description: "General-purpose web search over a search provider API",
			Category:    "retrieval",
			Parameters: []ParamSpec{
				{Name: "query", Type: "string", Required: true},
				{Name: "max_results", Type: "integer"},
			},
			Outputs: []OutputSpec{
				{Name: "search_results", Type: "array"},
			},
			Timeout: 60 * time.Second,
		},
		{
			ID:          "pubmed_search",
			Name:        "PubMed Search",
			Description: "Search PubMed for biomedical literature",
			Category:    "retrieval",
			Parameters: []ParamSpec{
				{Name: "query", Type: "string", Required: true},
				{Name: "date_range", Type: "object"},
				{Name: "max_results", Type: "integer"},
			},
			Outputs: []OutputSpec{
				{Name: "articles", Type: "array"},
			},
			Timeout: 60 * time.Second,
		},
		{
			ID:          "email_search",
			Name:        "Email Search",
			Description: "Search the caller's connected mailbox",
			Category:    "retrieval",
			Parameters: []ParamSpec{
				{Name: "query", Type: "string", Required: true},
				{Name: "folder", Type: "string"},
				{Name: "limit", Type: "integer"},
			},
			Outputs: []OutputSpec{
				{Name: "emails", Type: "array"},
			},
			Timeout: 60 * time.Second,
		},
		{
			ID:          "extract",
			Name:        "Extract",
			Description: "Extract structured records from unstructured items",
			Category:    "processing",
			Parameters: []ParamSpec{
				{Name: "items", Type: "array", Required: true},
				{Name: "schema", Type: "object", Required: true},
				{Name: "instructions", Type: "string"},
			},
			Outputs: []OutputSpec{
				{Name: "extractions", Type: "array"},
			},
			Timeout: 120 * time.Second,
		},
		{
			ID:          "summarize",
			Name:        "Summarize",
			Description: "Summarize a collection of documents into a report",
			Category:    "processing",
			Parameters: []ParamSpec{
				{Name: "documents", Type: "array", Required: true},
				{Name: "focus", Type: "string"},
			},
			Outputs: []OutputSpec{
				{Name: "summary", Type: "string"},
			},
			Timeout: 120 * time.Second,
		},
	}
}

// NewBuiltinRegistry 构造并装载默认工具集的注册中心。
func NewBuiltinRegistry(logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, def := range BuiltinDefinitions() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
