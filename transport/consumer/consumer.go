// Package consumer feeds the order service from the command topic.
// Clients enqueue JSON commands; results come back asynchronously over
// the notification topic, so business rejections here are logged, never
// fatal.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"matchbook/domain/book"
	"matchbook/service"
)

// Command is the wire form of one client request.
type Command struct {
	Type     string          `json:"type"` // trade | update | exit | list
	Owner    string          `json:"owner"`
	Security string          `json:"security,omitempty"`
	Side     string          `json:"side,omitempty"` // buy | sell
	Quantity int64           `json:"quantity,omitempty"`
	Price    decimal.Decimal `json:"price,omitempty"`
	OrderID  uint64          `json:"order_id,omitempty"`
}

const (
	CmdTrade  = "trade"
	CmdUpdate = "update"
	CmdExit   = "exit"
	CmdList   = "list"
)

type Consumer struct {
	group sarama.ConsumerGroup
	svc   *service.OrderService
	topic string
}

func New(brokers []string, group, topic string, svc *service.OrderService) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	g, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return nil, fmt.Errorf("consumer group: %w", err)
	}

	return &Consumer{group: g, svc: svc, topic: topic}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	h := &handler{svc: c.svc}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			log.Printf("[consumer] consume error: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

// -------------------- group handler --------------------

type handler struct {
	svc *service.OrderService
}

func (h *handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.dispatch(sess.Context(), msg.Value)
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (h *handler) dispatch(ctx context.Context, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Printf("[consumer] bad command: %v", err)
		return
	}

	switch cmd.Type {
	case CmdTrade:
		side, err := ParseSide(cmd.Side)
		if err != nil {
			log.Printf("[consumer] %v", err)
			return
		}
		res, err := h.svc.PlaceOrder(ctx, cmd.Owner, cmd.Security, side, cmd.Quantity, cmd.Price)
		if err != nil {
			log.Printf("[consumer] trade rejected owner=%s security=%s: %v", cmd.Owner, cmd.Security, err)
			return
		}
		log.Printf("[consumer] trade owner=%s security=%s id=%d notional=%s remaining=%d",
			cmd.Owner, cmd.Security, res.OrderID, res.Notional.String(), res.Remaining)

	case CmdUpdate:
		err := h.svc.UpdateOrder(ctx, cmd.Owner, cmd.OrderID, cmd.Security, cmd.Quantity, cmd.Price)
		if err != nil && !errors.Is(err, book.ErrOrderNotFound) {
			log.Printf("[consumer] update rejected id=%d: %v", cmd.OrderID, err)
		}

	case CmdExit:
		h.svc.OwnerExit(cmd.Owner)
		log.Printf("[consumer] owner %s exited, resting orders removed", cmd.Owner)

	case CmdList:
		for _, v := range h.svc.Snapshot() {
			log.Printf("[consumer] resting id=%d owner=%s security=%s side=%s price=%s remaining=%d",
				v.ID, v.Owner, v.Security, v.SideName, v.Price.String(), v.Remaining)
		}

	default:
		log.Printf("[consumer] unknown command type %q", cmd.Type)
	}
}

// ParseSide maps the wire side names onto the book's.
func ParseSide(s string) (book.Side, error) {
	switch s {
	case "buy", "BUY":
		return book.Buy, nil
	case "sell", "SELL":
		return book.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}
