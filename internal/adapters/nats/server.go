package natsadapter

import (
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/forum-auth/internal/tokenverify"
)

// VerifyHandler answers access-token introspection requests from other services.
type VerifyHandler struct {
	parser    tokenverify.Parser
	tokenType string
	now       func() time.Time
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK        bool           `json:"ok"`
	AccountID string         `json:"account_id,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Error     string         `json:"error,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}

func NewVerifyHandler(parser tokenverify.Parser, tokenType string) *VerifyHandler {
	return &VerifyHandler{parser: parser, tokenType: tokenType, now: time.Now, respondFn: respond}
}

func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_payload"})
		return
	}
	result, err := tokenverify.Verify(h.parser, req.Token, h.tokenType, h.now)
	if err != nil {
		switch {
		case errors.Is(err, tokenverify.ErrTokenExpired):
			h.respondFn(msg, verifyResponse{OK: false, Error: "expired"})
		case errors.Is(err, tokenverify.ErrSubjectMissing):
			h.respondFn(msg, verifyResponse{OK: false, Error: "subject_missing"})
		case errors.Is(err, tokenverify.ErrWrongType):
			h.respondFn(msg, verifyResponse{OK: false, Error: "wrong_token_type"})
		default:
			h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_token"})
		}
		return
	}
	h.respondFn(msg, verifyResponse{OK: true, AccountID: result.AccountID, Handle: result.Handle, Claims: result.Claims})
}

func respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
