// Package publish fans derived market facts out to independent subscribers.
package publish

// Topic is one of the published fact streams.
type Topic string

const (
	TopicOrderBook       Topic = "ORDERBOOK"
	TopicTrade           Topic = "TRADE"
	TopicLastTradePrice  Topic = "LAST_TRADE_PRICE"
	TopicBar             Topic = "BAR"
	TopicSwap            Topic = "SWAP"
	TopicAddLiquidity    Topic = "ADD_LIQUIDITY"
	TopicRemoveLiquidity Topic = "REMOVE_LIQUIDITY"
)

// Topics lists every topic.
var Topics = []Topic{
	TopicOrderBook,
	TopicTrade,
	TopicLastTradePrice,
	TopicBar,
	TopicSwap,
	TopicAddLiquidity,
	TopicRemoveLiquidity,
}

// IsValid checks if the topic is a known value.
func (t Topic) IsValid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTopic validates s as a topic name.
func ParseTopic(s string) (Topic, bool) {
	t := Topic(s)
	return t, t.IsValid()
}
