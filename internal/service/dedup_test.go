package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-insight/internal/model"
)

func TestDedupSameAuthorDifferentSuffix(t *testing.T) {
	// 同一个人在两个群各发一遍，昵称一个带地区后缀一个不带
	items := []model.Highlight{
		{Content: "小明今天出单了", Author: "小明", Date: "2025-12-10", Group: "AI产品出海2期1群"},
		{Content: "小明今天出单了，5000 美金，恭喜！", Author: "小明-广州", Date: "2025-12-10", Group: "AI产品出海2期2群"},
	}

	out := DedupHighlights(items, 0.8)
	require.Len(t, out, 1)
	// 保留更长的原文
	require.Equal(t, "小明今天出单了，5000 美金，恭喜！", out[0].Content)
	require.Equal(t, "AI产品出海2期1群/AI产品出海2期2群", out[0].Group)
}

func TestDedupDifferentDateNotMerged(t *testing.T) {
	items := []model.Highlight{
		{Content: "小明出单了", Author: "小明", Date: "2025-12-10", Group: "1群"},
		{Content: "小明出单了", Author: "小明", Date: "2025-12-11", Group: "2群"},
	}
	require.Len(t, DedupHighlights(items, 0.8), 2)
}

func TestDedupContentOverlapWithoutAuthor(t *testing.T) {
	// 作者对不上但内容字符重合率够高，按同一事件并掉；同义词先折叠
	items := []model.Highlight{
		{Content: "喜报：小红首单成交5000美金", Author: "管理员A", Date: "2025-12-10", Group: "1群"},
		{Content: "喜讯：小红首单开单5000美金", Author: "助教B", Date: "2025-12-10", Group: "2群"},
		{Content: "完全不相关的另一条分享", Author: "小刚", Date: "2025-12-10", Group: "1群"},
	}

	out := DedupHighlights(items, 0.8)
	require.Len(t, out, 2)
}

func TestDedupConvergence(t *testing.T) {
	items := []model.Highlight{
		{Content: "小明出单了", Author: "小明", Date: "2025-12-10", Group: "1群"},
		{Content: "小明出单了，金额5000", Author: "小明-广州", Date: "2025-12-10", Group: "2群"},
		{Content: "小红分享了教程", Author: "小红", Date: "2025-12-10", Group: "1群"},
	}

	once := DedupHighlights(items, 0.8)
	twice := DedupHighlights(once, 0.8)
	require.Equal(t, once, twice)
}

func TestDedupZeroThresholdFallsBackToDefault(t *testing.T) {
	items := []model.Highlight{
		{Content: "甲的事", Author: "甲", Date: "2025-12-10"},
		{Content: "乙的事", Author: "乙", Date: "2025-12-10"},
	}
	require.Len(t, DedupHighlights(items, 0), 2)
}

func TestNormalizeAuthorKey(t *testing.T) {
	require.Equal(t, NormalizeAuthorKey("小明"), NormalizeAuthorKey("小明-广州"))
	require.Equal(t, NormalizeAuthorKey("小明"), NormalizeAuthorKey("小明｜助教"))
	require.Equal(t, NormalizeAuthorKey("小明"), NormalizeAuthorKey(" 小明（2期） "))
	// 以分隔符开头的昵称不截断
	require.NotEmpty(t, NormalizeAuthorKey("-小明"))
	require.Empty(t, NormalizeAuthorKey("  "))
}

func TestCharOverlapRatio(t *testing.T) {
	require.InDelta(t, 1.0, charOverlapRatio("abc", "abc"), 0.001)
	require.InDelta(t, 1.0, charOverlapRatio("abc", "abcde"), 0.001) // 交集/较小集
	require.Zero(t, charOverlapRatio("abc", "xyz"))
	require.Zero(t, charOverlapRatio("", "abc"))
}
