// Package kafka publishes executed trades on the market-data topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Trade is the market-data wire payload, one message per fill,
// partitioned by security so consumers read each instrument in order.
type Trade struct {
	TradeID     string          `json:"trade_id"`
	Security    string          `json:"security"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Time        int64           `json:"time"`
}

type TradeFeed struct {
	writer *kafka.Writer
}

func NewTradeFeed(brokers []string, topic string) *TradeFeed {
	return &TradeFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (f *TradeFeed) PublishTrade(ctx context.Context, t Trade) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Security),
		Value: payload,
	})
}

func (f *TradeFeed) Close() error {
	return f.writer.Close()
}
