package comm

import (
	"encoding/json"
)

// Message types accepted on the balance subject.
const (
	TypeGetBalance = "get-balance"
	TypeSetBalance = "set-balance"
	TypeAddBalance = "add-balance"
	TypeBalanceTop = "balance-top"
)

// Message types published in reply.
const (
	TypeBalanceResp    = "balance-resp"
	TypeBalanceTopResp = "balance-top-resp"
	TypeBalanceError   = "balance-error"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "get-balance", "balance-top"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

type BalanceRequest struct {
	UserId string `json:"user_id"`
}

type SetBalanceRequest struct {
	UserId  string `json:"user_id"`
	Balance string `json:"balance"`
}

type AddBalanceRequest struct {
	UserId string `json:"user_id"`
	Amount string `json:"amount"`
}

type PlayerBalance struct {
	UserId  string `json:"user_id"`
	Balance string `json:"balance"`
}

type BalanceTop struct {
	Entries []PlayerBalance `json:"entries"`
}

type ErrorData struct {
	Error string `json:"error"`
}
