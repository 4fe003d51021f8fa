package broker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/avvvet/balance-services/internal/balancesvc/service"
	"github.com/avvvet/balance-services/internal/balancesvc/store"
	"github.com/avvvet/balance-services/internal/comm"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, seed ...models.StoredBalance) *Broker {
	t.Helper()
	svc := service.NewBalanceService(store.NewMemoryBalanceStore(seed...), decimal.RequireFromString("100"), 0)
	require.NoError(t, svc.Initialize(context.Background()))
	return NewBroker(nil, svc, "balance.service")
}

func request(t *testing.T, msgType string, v any) *comm.WSMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &comm.WSMessage{Type: msgType, Data: data, SocketId: "sock-1"}
}

func decode[T any](t *testing.T, msg *comm.WSMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func TestDispatch_GetBalanceNewPlayer(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New()

	resp := b.dispatch(context.Background(), request(t, comm.TypeGetBalance, comm.BalanceRequest{UserId: id.String()}))

	require.Equal(t, comm.TypeBalanceResp, resp.Type)
	assert.Equal(t, "sock-1", resp.SocketId)
	got := decode[comm.PlayerBalance](t, resp)
	assert.Equal(t, id.String(), got.UserId)
	assert.Equal(t, "100.00", got.Balance)
}

func TestDispatch_SetThenAdd(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	id := uuid.New().String()

	resp := b.dispatch(ctx, request(t, comm.TypeSetBalance, comm.SetBalanceRequest{UserId: id, Balance: "250.50"}))
	require.Equal(t, comm.TypeBalanceResp, resp.Type)
	assert.Equal(t, "250.50", decode[comm.PlayerBalance](t, resp).Balance)

	resp = b.dispatch(ctx, request(t, comm.TypeAddBalance, comm.AddBalanceRequest{UserId: id, Amount: "50.00"}))
	require.Equal(t, comm.TypeBalanceResp, resp.Type)
	assert.Equal(t, "300.50", decode[comm.PlayerBalance](t, resp).Balance)
}

func TestDispatch_BalanceTop(t *testing.T) {
	rich := models.NewStoredBalance(uuid.New(), decimal.RequireFromString("500"))
	poor := models.NewStoredBalance(uuid.New(), decimal.RequireFromString("10"))
	b := newTestBroker(t, poor, rich)

	resp := b.dispatch(context.Background(), request(t, comm.TypeBalanceTop, struct{}{}))

	require.Equal(t, comm.TypeBalanceTopResp, resp.Type)
	top := decode[comm.BalanceTop](t, resp)
	require.Len(t, top.Entries, 2)
	assert.Equal(t, comm.PlayerBalance{UserId: rich.User.String(), Balance: "500.00"}, top.Entries[0])
	assert.Equal(t, comm.PlayerBalance{UserId: poor.User.String(), Balance: "10.00"}, top.Entries[1])
}

func TestDispatch_Errors(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New().String()

	cases := map[string]*comm.WSMessage{
		"bad uuid":     request(t, comm.TypeGetBalance, comm.BalanceRequest{UserId: "nope"}),
		"bad balance":  request(t, comm.TypeSetBalance, comm.SetBalanceRequest{UserId: id, Balance: "ten"}),
		"bad amount":   request(t, comm.TypeAddBalance, comm.AddBalanceRequest{UserId: id, Amount: ""}),
		"bad payload":  {Type: comm.TypeGetBalance, Data: json.RawMessage(`"x"`)},
		"unknown type": {Type: "withdraw", Data: json.RawMessage(`{}`)},
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			resp := b.dispatch(context.Background(), msg)
			require.Equal(t, comm.TypeBalanceError, resp.Type)
			assert.NotEmpty(t, decode[comm.ErrorData](t, resp).Error)
		})
	}
}

func TestBroker_RequestReply(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer nc.Close()

	b := newTestBroker(t)
	b.Conn = nc
	subject := "balance.test." + uuid.NewString()
	sub, err := b.Subscribe(subject)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	payload, err := json.Marshal(request(t, comm.TypeGetBalance, comm.BalanceRequest{UserId: uuid.NewString()}))
	require.NoError(t, err)

	msg, err := nc.Request(subject, payload, 2*time.Second)
	require.NoError(t, err)

	var resp comm.WSMessage
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, comm.TypeBalanceResp, resp.Type)
	assert.Equal(t, "100.00", decode[comm.PlayerBalance](t, &resp).Balance)
}

func TestRespond_UndecodableEnvelopeAnswersRequester(t *testing.T) {
	b := newTestBroker(t)

	topic, payload, ok := b.respond(&nats.Msg{Reply: "_INBOX.abc", Data: []byte("not json")})

	require.True(t, ok)
	assert.Equal(t, "_INBOX.abc", topic)
	var resp comm.WSMessage
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, comm.TypeBalanceError, resp.Type)
	assert.Contains(t, decode[comm.ErrorData](t, &resp).Error, "decode message")
}

func TestRespond_UndecodableEnvelopeWithoutReplyIsDropped(t *testing.T) {
	b := newTestBroker(t)

	_, _, ok := b.respond(&nats.Msg{Data: []byte("not json")})

	assert.False(t, ok)
}

func TestRespond_UsesReplySubjectWithoutInbox(t *testing.T) {
	b := newTestBroker(t)
	data, err := json.Marshal(request(t, comm.TypeBalanceTop, struct{}{}))
	require.NoError(t, err)

	topic, payload, ok := b.respond(&nats.Msg{Data: data})

	require.True(t, ok)
	assert.Equal(t, "balance.service", topic)
	var resp comm.WSMessage
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, comm.TypeBalanceTopResp, resp.Type)
	assert.Equal(t, "sock-1", resp.SocketId)
}

func TestReply_UnencodablePayloadBecomesError(t *testing.T) {
	req := &comm.WSMessage{Type: comm.TypeGetBalance, SocketId: "sock-1"}

	resp := reply(req, comm.TypeBalanceResp, make(chan int))

	require.Equal(t, comm.TypeBalanceError, resp.Type)
	assert.Equal(t, "sock-1", resp.SocketId)
	assert.Contains(t, decode[comm.ErrorData](t, resp).Error, "encode balance-resp")
}
