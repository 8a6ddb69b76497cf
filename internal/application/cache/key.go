package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"docqa-rag-api/internal/application/retrieval"
)

// Key 响应缓存指纹
type Key string

// Short 日志用短前缀
func (k Key) Short() string {
	if len(k) > 16 {
		return string(k[:16])
	}
	return string(k)
}

// ComputeKey 对 (归一化问题, 排序去重的文档 ID, 焦点窗口) 计算 sha256
//
// 纯函数：相同输入总是得到相同 key，与 documentIDs 的顺序无关。
func ComputeKey(query string, documentIDs []string, focus *retrieval.FocusContext) Key {
	var b strings.Builder
	b.WriteString(NormalizeQuery(query))
	b.WriteByte(0)
	b.WriteString(strings.Join(normalizeIDs(documentIDs), ","))
	b.WriteByte(0)
	if focus != nil {
		b.WriteString(strconv.Itoa(focus.StartChar))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(focus.EndChar))
	} else {
		b.WriteString("none")
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Key(hex.EncodeToString(sum[:]))
}

// NormalizeQuery 去首尾空白、折叠连续空白并转小写
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
