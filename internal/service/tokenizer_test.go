package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeBasic(t *testing.T) {
	raw := `小明 12-10 09:00:00
早上好
大家早
小红 12-10 10:30:00
请问这个怎么配置？`

	msgs := TokenizeMessages(raw)
	require.Len(t, msgs, 2)
	require.Equal(t, "小明", msgs[0].Author)
	require.Equal(t, "09:00:00", msgs[0].TimeOfDay)
	require.Equal(t, "早上好\n大家早", msgs[0].Body)
	require.Equal(t, "小红", msgs[1].Author)
	require.Equal(t, "请问这个怎么配置？", msgs[1].Body)
}

func TestTokenizeDecorationSuffixStripped(t *testing.T) {
	raw := `助教老师 | 24小时内回复 12-10 14:00:00
收到，我看一下`

	msgs := TokenizeMessages(raw)
	require.Len(t, msgs, 1)
	require.Equal(t, "助教老师", msgs[0].Author)
}

func TestTokenizeLeadingContentDropped(t *testing.T) {
	raw := `这是导出工具加的说明
还有一行
小明 12-10 09:00:00
正文`

	msgs := TokenizeMessages(raw)
	require.Len(t, msgs, 1)
	require.Equal(t, "正文", msgs[0].Body)
}

func TestTokenizeSameLineBody(t *testing.T) {
	raw := `小明 12-10 09:00:00 在线吗`
	msgs := TokenizeMessages(raw)
	require.Len(t, msgs, 1)
	require.Equal(t, "在线吗", msgs[0].Body)
}

func TestTokenizeShortHourPadded(t *testing.T) {
	raw := `小明 12-10 9:05:00
test`
	msgs := TokenizeMessages(raw)
	require.Len(t, msgs, 1)
	require.Equal(t, "09:05:00", msgs[0].TimeOfDay)
}

func TestTokenizeEmpty(t *testing.T) {
	require.Empty(t, TokenizeMessages(""))
}
