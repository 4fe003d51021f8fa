package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/avvvet/balance-services/internal/balancesvc/service"
	"github.com/avvvet/balance-services/internal/comm"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

type Broker struct {
	Conn           *nats.Conn
	BalanceService *service.BalanceService
	ReplySubject   string
}

func NewBroker(nc *nats.Conn, balanceService *service.BalanceService, replySubject string) *Broker {
	return &Broker{
		Conn:           nc,
		BalanceService: balanceService,
		ReplySubject:   replySubject,
	}
}

// handles message coming from other game services
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	topic, payload, ok := b.respond(msgNat)
	if !ok {
		return
	}
	b.Publish(topic, payload)
}

// respond builds the reply for msgNat and the subject it goes to. ok is false
// when there is nobody to answer.
func (b *Broker) respond(msgNat *nats.Msg) (topic string, payload []byte, ok bool) {
	topic = b.ReplySubject
	if msgNat.Reply != "" {
		topic = msgNat.Reply
	}

	msg := &comm.WSMessage{}
	var resp *comm.WSMessage
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		// without an envelope there is no socket to route to, only a requester
		if msgNat.Reply == "" {
			return "", nil, false
		}
		resp = errorMessage(msg, fmt.Errorf("decode message: %w", err))
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		resp = b.dispatch(ctx, msg)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("Error marshal %s response: %s", resp.Type, err)
		return "", nil, false
	}
	return topic, payload, true
}

// dispatch runs one request against the balance service and builds the reply.
func (b *Broker) dispatch(ctx context.Context, msg *comm.WSMessage) *comm.WSMessage {
	switch msg.Type {
	case comm.TypeGetBalance:
		var request comm.BalanceRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			return errorMessage(msg, fmt.Errorf("decode %s: %w", msg.Type, err))
		}
		id, err := uuid.Parse(request.UserId)
		if err != nil {
			return errorMessage(msg, fmt.Errorf("invalid user_id: %w", err))
		}

		balance, err := b.BalanceService.GetUser(ctx, id)
		if err != nil {
			log.Errorf("Error [BalanceService.GetUser] %s", err)
			return errorMessage(msg, err)
		}
		return balanceMessage(msg, balance)

	case comm.TypeSetBalance:
		var request comm.SetBalanceRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			return errorMessage(msg, fmt.Errorf("decode %s: %w", msg.Type, err))
		}
		id, err := uuid.Parse(request.UserId)
		if err != nil {
			return errorMessage(msg, fmt.Errorf("invalid user_id: %w", err))
		}
		amount, err := decimal.NewFromString(request.Balance)
		if err != nil {
			return errorMessage(msg, fmt.Errorf("invalid balance: %w", err))
		}

		balance := models.NewStoredBalance(id, amount)
		if err := b.BalanceService.UpdateUser(ctx, balance); err != nil {
			log.Errorf("Error [BalanceService.UpdateUser] %s", err)
			return errorMessage(msg, err)
		}
		return balanceMessage(msg, balance)

	case comm.TypeAddBalance:
		var request comm.AddBalanceRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			return errorMessage(msg, fmt.Errorf("decode %s: %w", msg.Type, err))
		}
		id, err := uuid.Parse(request.UserId)
		if err != nil {
			return errorMessage(msg, fmt.Errorf("invalid user_id: %w", err))
		}
		amount, err := decimal.NewFromString(request.Amount)
		if err != nil {
			return errorMessage(msg, fmt.Errorf("invalid amount: %w", err))
		}

		var result models.StoredBalance
		err = b.BalanceService.ModifyUser(ctx, id, func(current models.StoredBalance) models.StoredBalance {
			result = current.Add(amount)
			return result
		})
		if err != nil {
			log.Errorf("Error [BalanceService.ModifyUser] %s", err)
			return errorMessage(msg, err)
		}
		return balanceMessage(msg, result)

	case comm.TypeBalanceTop:
		top, err := b.BalanceService.GetBalanceTop(ctx)
		if err != nil {
			log.Errorf("Error [BalanceService.GetBalanceTop] %s", err)
			return errorMessage(msg, err)
		}

		entries := make([]comm.PlayerBalance, 0, len(top))
		for _, balance := range top {
			entries = append(entries, playerBalance(balance))
		}
		return reply(msg, comm.TypeBalanceTopResp, comm.BalanceTop{Entries: entries})

	default:
		log.Errorf("Unknown message type %q", msg.Type)
		return errorMessage(msg, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func playerBalance(b models.StoredBalance) comm.PlayerBalance {
	return comm.PlayerBalance{
		UserId:  b.User.String(),
		Balance: b.Balance.StringFixed(2),
	}
}

func balanceMessage(req *comm.WSMessage, b models.StoredBalance) *comm.WSMessage {
	return reply(req, comm.TypeBalanceResp, playerBalance(b))
}

func errorMessage(req *comm.WSMessage, err error) *comm.WSMessage {
	return reply(req, comm.TypeBalanceError, comm.ErrorData{Error: err.Error()})
}

func reply(req *comm.WSMessage, msgType string, v any) *comm.WSMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("unable to marshal %s for socket %s: %s", msgType, req.SocketId, err)
		if msgType == comm.TypeBalanceError {
			data = []byte(`{"error":"internal error"}`)
		} else {
			return errorMessage(req, fmt.Errorf("encode %s: %w", msgType, err))
		}
	}

	return &comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: req.SocketId,
	}
}

// consume balance requests
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
