package quota

import "strings"

const perMillion = 1_000_000.0

// Usage 一次生成上报的 token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total prompt + completion，cached 已包含在 prompt 中
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Price 每百万 token 的美元价格
type Price struct {
	InputPerMillion  float64
	CachedPerMillion float64
	OutputPerMillion float64
}

// DeepSeekChatPrice deepseek-chat 缓存未命中 / 命中 / 输出价格
var DeepSeekChatPrice = Price{
	InputPerMillion:  0.28,
	CachedPerMillion: 0.028,
	OutputPerMillion: 0.42,
}

// PriceTable 按模型名查价，未知模型使用 Default
type PriceTable struct {
	Default Price
	Models  map[string]Price
}

// DefaultPriceTable 内置价格表
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Default: DeepSeekChatPrice,
		Models: map[string]Price{
			"deepseek-chat":     DeepSeekChatPrice,
			"deepseek-reasoner": DeepSeekChatPrice,
		},
	}
}

func (t PriceTable) lookup(model string) Price {
	if p, ok := t.Models[strings.ToLower(strings.TrimSpace(model))]; ok {
		return p
	}
	return t.Default
}

// Cost 计算美元花费：未命中缓存的 prompt、命中缓存的 prompt、输出分别计价
func (t PriceTable) Cost(model string, u Usage) float64 {
	p := t.lookup(model)
	cached := max(0, min(u.CachedTokens, u.PromptTokens))
	uncached := max(0, u.PromptTokens-cached)
	completion := max(0, u.CompletionTokens)

	return float64(uncached)*p.InputPerMillion/perMillion +
		float64(cached)*p.CachedPerMillion/perMillion +
		float64(completion)*p.OutputPerMillion/perMillion
}
