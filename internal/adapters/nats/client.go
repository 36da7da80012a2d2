package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

// AccountCreated is announced to the content service so it can attach posts to the new author.
type AccountCreated struct {
	ID               string `json:"id"`
	Handle           string `json:"handle"`
	Nickname         string `json:"nickname"`
	RegistrationType string `json:"registration_type"`
}

type UserClient interface {
	NotifyAccountCreated(ctx context.Context, event AccountCreated) error
}

type userClient struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

func NewUserClient(conn *nats.Conn, subject string) UserClient {
	return &userClient{conn: conn, subject: subject, timeout: 3 * time.Second}
}

func (c *userClient) NotifyAccountCreated(ctx context.Context, event AccountCreated) error {
	return requestAck(ctx, c.conn, c.subject, c.timeout, event)
}

func requestAck(ctx context.Context, conn *nats.Conn, subject string, timeout time.Duration, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("empty response from %s", subject)
	}
	return decodeAck(subject, msg.Data)
}

func decodeAck(subject string, data []byte) error {
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	if !resp.OK {
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		return fmt.Errorf("request to %s failed", subject)
	}
	return nil
}
