package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDaysByInlineTimestamp(t *testing.T) {
	raw := `导出前的说明文字
小明 12-10 09:00:00
早上好
小红 12-10 10:30:00
请问这个怎么配置？
小明 12-11 08:15:00
新的一天`

	chunks := SplitDays(raw, 2025)
	require.Len(t, chunks, 2)
	require.Equal(t, "2025-12-10", chunks[0].Date)
	require.Equal(t, "2025-12-11", chunks[1].Date)
	require.Contains(t, chunks[0].Content, "请问这个怎么配置")
	require.NotContains(t, chunks[0].Content, "导出前的说明文字")
	require.Contains(t, chunks[1].Content, "新的一天")
}

func TestSplitDaysBannerAlwaysOpensChunk(t *testing.T) {
	raw := `————— 2025-12-10 —————
小明 12-10 09:00:00
你好
————— 2025-12-11 —————
小红 12-11 09:00:00
第二天`

	chunks := SplitDays(raw, 2025)
	require.Len(t, chunks, 2)
	require.Equal(t, "2025-12-10", chunks[0].Date)
	require.Equal(t, "2025-12-11", chunks[1].Date)
}

func TestSplitDaysQuotedEarlierDateDoesNotSplit(t *testing.T) {
	// 引用的旧消息日期更早，单调向前规则下不应该切块
	raw := `小明 12-11 09:00:00
今天说的
小红 12-11 09:05:00
「小明 12-09 20:00:00 之前说的话」这个引用别切
小明 12-12 10:00:00
又过了一天`

	chunks := SplitDays(raw, 2025)
	require.Len(t, chunks, 2)
	require.Equal(t, "2025-12-11", chunks[0].Date)
	require.Contains(t, chunks[0].Content, "之前说的话")
	require.Equal(t, "2025-12-12", chunks[1].Date)
}

func TestSplitDaysMonotonicProperty(t *testing.T) {
	raw := `a 01-05 10:00:00
x
b 01-03 11:00:00
y
c 01-07 12:00:00
z
d 01-06 13:00:00
w`

	chunks := SplitDays(raw, 2025)
	for i := 1; i < len(chunks); i++ {
		require.GreaterOrEqual(t, chunks[i].Date, chunks[i-1].Date,
			"chunk dates must be non-decreasing")
	}
}

func TestSplitDaysEmptyInput(t *testing.T) {
	require.Empty(t, SplitDays("", 2025))
	require.Empty(t, SplitDays("没有任何日期的文本\n第二行", 2025))
}
