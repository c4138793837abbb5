package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"tickdb/internal/model"
	"tickdb/pkg/exception"
)

const (
	baseWsURL           = "wss://stream.binance.com:9443/ws"
	baseWsURLMarketOnly = "wss://data-stream.binance.vision/ws"
)

// Stream implements the exchange streaming capability for binance spot,
// emitting the decoded message union for the trade and diff-depth channels.
type Stream struct {
	wss      *ws.WebSocket
	exchange string
	category string
}

// StreamConfig configures the public market stream.
type StreamConfig struct {
	URL        string
	MarketOnly bool // use the data-only endpoint (no account streams)
}

func NewStream(ctx context.Context, cfg StreamConfig) *Stream {
	url := cfg.URL
	if url == "" {
		if cfg.MarketOnly {
			url = baseWsURLMarketOnly
		} else {
			url = baseWsURL
		}
	}
	return &Stream{
		wss:      ws.New(ctx, url),
		exchange: "binance",
		category: "spot",
	}
}

func (s *Stream) Len() int {
	return s.wss.Len()
}

func (s *Stream) Close() {
	s.wss.Close()
}

func (s *Stream) Start(ctx context.Context) error {
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscribeResponseParser(m ws.Message) (subscribeResponse, bool) {
	var resp subscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// Subscribe attaches the trade and diff-depth channels for one symbol.
func (s *Stream) Subscribe(ctx context.Context, symbol string) error {
	appendIntoRegister := true
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@trade", strings.ToLower(symbol)),
					fmt.Sprintf("%s@depth@100ms", strings.ToLower(symbol)),
				},
				ID: 1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscribeResponseParser(m)
			if !ok || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// Observe decodes inbound frames into the message union and hands them to
// handler. A frame that fails to decode is logged and skipped, never fatal.
func (s *Stream) Observe(ctx context.Context, handler func(model.MarketMessage)) (unsubscribe func()) {
	ch, cancel := s.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				msg, err := s.decode(m)
				if err != nil {
					logs.Errorf("binance stream: frame skipped: %v", err)
					continue
				}
				if msg == nil {
					continue
				}
				handler(*msg)
			}
		}
	}()

	return cancel
}

// decode turns one inbound frame into the message union. nil with no error
// means an ignorable frame (acks, pings, unknown event types).
func (s *Stream) decode(m ws.Message) (*model.MarketMessage, error) {
	var envelope wsEnvelope
	if err := m.Unmarshal(&envelope); err != nil {
		return nil, errors.Wrap(exception.ErrStreamDecode, err.Error())
	}

	msg := model.MarketMessage{Exchange: s.exchange, Category: s.category}

	switch envelope.EventType {
	case "trade":
		var t wsTrade
		if err := m.Unmarshal(&t); err != nil {
			return nil, errors.Wrap(exception.ErrStreamDecode, err.Error()).With("event", "trade")
		}
		msg.Symbol = t.Symbol
		msg.Trades = []model.Trade{t.trade()}
		return &msg, nil

	case "depthUpdate":
		var d wsDepth
		if err := m.Unmarshal(&d); err != nil {
			return nil, errors.Wrap(exception.ErrStreamDecode, err.Error()).With("event", "depthUpdate")
		}
		update, err := d.update()
		if err != nil {
			return nil, errors.Wrap(exception.ErrStreamDecode, err.Error()).With("event", "depthUpdate")
		}
		msg.Symbol = d.Symbol
		msg.Book = update
		return &msg, nil

	case "":
		// subscribe acks and pings carry no event type
		return nil, nil

	default:
		return nil, nil
	}
}
