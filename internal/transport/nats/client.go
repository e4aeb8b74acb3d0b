package natstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"

	derrors "threadhub/pkg/domain-errors"
)

// Client is the caller side of the RPC adapter.
type Client struct {
	conn        *nats.Conn
	subjectRoot string
	timeout     time.Duration
}

// NewClient constructs a Client against the same subject root the server
// subscribes on.
func NewClient(conn *nats.Conn, subjectRoot string) *Client {
	return &Client{conn: conn, subjectRoot: subjectRoot, timeout: 5 * time.Second}
}

// Request performs one request/reply call and returns the data payload.
func (c *Client) Request(ctx context.Context, operation string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	msg, err := c.conn.RequestWithContext(ctx, c.subjectRoot+"."+operation, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", operation, err)
	}

	var resp struct {
		OK        bool            `json:"ok"`
		Error     string          `json:"error"`
		ErrorCode string          `json:"error_code"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", operation, err)
	}
	if !resp.OK {
		return nil, derrors.New(derrors.Code(resp.ErrorCode), resp.Error)
	}
	return resp.Data, nil
}

// StreamMessages consumes the message stream for a thread, calling fn once
// per frame until the done frame or an error.
func (c *Client) StreamMessages(ctx context.Context, token, threadID string, fn func(json.RawMessage) error) error {
	inbox := nats.NewInbox()
	sub, err := c.conn.SubscribeSync(inbox)
	if err != nil {
		return fmt.Errorf("subscribe inbox: %w", err)
	}
	defer sub.Unsubscribe()

	reqData, err := json.Marshal(threadIDRequest{Token: token, ThreadID: threadID})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := c.conn.PublishRequest(c.subjectRoot+".threads.stream", inbox, reqData); err != nil {
		return fmt.Errorf("request stream: %w", err)
	}

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return fmt.Errorf("next frame: %w", err)
		}

		var frame struct {
			OK        bool            `json:"ok"`
			Error     string          `json:"error"`
			ErrorCode string          `json:"error_code"`
			Data      json.RawMessage `json:"data"`
			Done      bool            `json:"done"`
		}
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if !frame.OK {
			return derrors.New(derrors.Code(frame.ErrorCode), frame.Error)
		}
		if frame.Done {
			return nil
		}
		if err := fn(frame.Data); err != nil {
			return err
		}
	}
}
