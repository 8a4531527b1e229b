package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveKnownGroup(t *testing.T) {
	r := NewGroupResolver(nil)
	info := r.Resolve("深海圈丨AI产品出海2期2群_2025-12-10.txt")

	require.Equal(t, "AI产品出海", info.ProductLine)
	require.Equal(t, "2", info.Period)
	require.Equal(t, 2, info.GroupNumber)
	require.Equal(t, "AI产品出海2期2群", info.Canonical)
	require.Equal(t, "2025-12-10", info.DateStr)
}

func TestResolveSlashDate(t *testing.T) {
	r := NewGroupResolver(nil)
	info := r.Resolve("AI产品出海1期1群_2025/03/05.txt")
	require.Equal(t, "2025-03-05", info.DateStr)
	require.Equal(t, "1", info.Period)
	require.Equal(t, 1, info.GroupNumber)
}

func TestResolveShortDateAssumesCurrentYear(t *testing.T) {
	r := NewGroupResolver(nil)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	info := r.Resolve("AI编程实战1期1群_03-15.txt")
	require.Equal(t, "2025-03-15", info.DateStr)
	require.Equal(t, "AI编程实战", info.ProductLine)
}

func TestResolveRegistryOrderWins(t *testing.T) {
	// 注册表顺序即优先级：前面的更具体的条目先命中
	rules := DefaultGroupRules()
	r := NewGroupResolver(rules)
	info := r.Resolve("深海圈丨AI产品出海2期1群_2025-12-10.txt")
	require.Equal(t, 1, info.GroupNumber)
	require.Equal(t, "AI产品出海2期1群", info.Canonical)
}

func TestResolveUnknownDegradesGracefully(t *testing.T) {
	r := NewGroupResolver(nil)
	info := r.Resolve("随便什么群_2025-01-02.txt")

	// 认不出也不报错，标 Unknown 留给人工
	require.Equal(t, UnknownProductLine, info.ProductLine)
	require.Equal(t, "2025-01-02", info.DateStr)
}

func TestResolveFallbackExtractsPeriodGroup(t *testing.T) {
	r := NewGroupResolver(nil)
	info := r.Resolve("深海圈丨跨境电商3期5群_2025-11-01.txt")

	require.Equal(t, "跨境电商", info.ProductLine)
	require.Equal(t, "3", info.Period)
	require.Equal(t, 5, info.GroupNumber)
	require.Equal(t, "跨境电商3期5群", info.Canonical)
}

func TestResolveBracketAnnotationsIgnored(t *testing.T) {
	r := NewGroupResolver(nil)
	info := r.Resolve("【已归档】AI产品出海2期2群_2025-12-10.txt")
	require.Equal(t, "AI产品出海", info.ProductLine)
	require.Equal(t, 2, info.GroupNumber)
}
