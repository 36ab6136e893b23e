package toolkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	def := Definition{
		ID:         "web_search",
		Name:       "Web Search",
		Parameters: []ParamSpec{{Name: "query", Type: "string", Required: true}},
		Outputs:    []OutputSpec{{Name: "search_results", Type: "array"}},
	}
	require.NoError(t, reg.Register(def))

	// 重复注册报错
	err := reg.Register(def)
	assert.Error(t, err)

	got, ok := reg.Get("web_search")
	require.True(t, ok)
	assert.True(t, got.HasParameter("query"))
	assert.False(t, got.HasParameter("nope"))
	assert.True(t, got.HasOutput("search_results"))

	// 默认超时已填充
	assert.NotZero(t, got.Timeout)

	assert.True(t, reg.Has("web_search"))
	assert.False(t, reg.Has("missing"))
	assert.Len(t, reg.List(), 1)
}

func TestRegistry_EmptyIDRejected(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	assert.Error(t, reg.Register(Definition{}))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, reg.Register(Definition{ID: "extract"}))

	// 未注册工具不能绑定处理器
	err := reg.RegisterHandler("missing", HandlerFunc(func(ctx context.Context, in ExecutionInput) (*ExecutionResult, error) {
		return &ExecutionResult{}, nil
	}))
	assert.Error(t, err)

	called := false
	require.NoError(t, reg.RegisterHandler("extract", HandlerFunc(func(ctx context.Context, in ExecutionInput) (*ExecutionResult, error) {
		called = true
		return &ExecutionResult{Outputs: map[string]any{"extractions": []any{}}}, nil
	})))

	h, ok := reg.Handler("extract")
	require.True(t, ok)
	_, err = h.Execute(context.Background(), ExecutionInput{StepID: "step-1"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestAliasTable_Resolve(t *testing.T) {
	aliases := DefaultAliases()

	actual, ok := aliases.Resolve("pubmed_search", "articles")
	require.True(t, ok)
	assert.Equal(t, "results", actual)

	_, ok = aliases.Resolve("pubmed_search", "unknown_output")
	assert.False(t, ok)

	_, ok = aliases.Resolve("no_such_tool", "articles")
	assert.False(t, ok)
}

func TestBuiltinRegistry(t *testing.T) {
	reg, err := NewBuiltinRegistry(zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, id := range []string{"web_search", "pubmed_search", "email_search", "extract", "summarize"} {
		assert.True(t, reg.Has(id), id)
	}

	// 别名表与内置定义保持一致
	actual, ok := reg.ResolveOutputAlias("web_search", "search_results")
	require.True(t, ok)
	assert.Equal(t, "results", actual)
}
