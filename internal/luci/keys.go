package luci

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
)

// readBody is the unencrypted body of both key requests.
const readBody = "operation=read"

type keysReply struct {
	Success bool `json:"success"`
	Data    struct {
		Password []string `json:"password"`
	} `json:"data"`
}

type authReply struct {
	Success bool `json:"success"`
	Data    struct {
		Key []string     `json:"key"`
		Seq *json.Number `json:"seq"`
	} `json:"data"`
}

// fetchKeyExchange reads the password key from login?form=keys and the
// signing key plus sequence from login?form=auth. Both are plain JSON.
func (c *Client) fetchKeyExchange(ctx context.Context) (*envelope.KeyExchange, error) {
	var keys keysReply
	if err := c.readPlain(ctx, endpointKeys, &keys); err != nil {
		return nil, err
	}
	if !keys.Success || len(keys.Data.Password) != 2 {
		return nil, &Error{Kind: KindProtocol, Op: endpointKeys.String(), Code: "missing password key"}
	}
	pwKey, err := envelope.ParsePublicKey(keys.Data.Password[0], keys.Data.Password[1])
	if err != nil {
		return nil, newError(KindProtocol, endpointKeys.String(), err)
	}

	var auth authReply
	if err := c.readPlain(ctx, endpointAuth, &auth); err != nil {
		return nil, err
	}
	if !auth.Success || len(auth.Data.Key) != 2 {
		return nil, &Error{Kind: KindProtocol, Op: endpointAuth.String(), Code: "missing signing key"}
	}
	if auth.Data.Seq == nil {
		return nil, &Error{Kind: KindProtocol, Op: endpointAuth.String(), Code: "missing seq"}
	}
	seq, err := auth.Data.Seq.Int64()
	if err != nil || seq < 0 {
		return nil, &Error{Kind: KindProtocol, Op: endpointAuth.String(), Code: "bad seq", Err: err}
	}
	signKey, err := envelope.ParsePublicKey(auth.Data.Key[0], auth.Data.Key[1])
	if err != nil {
		return nil, newError(KindProtocol, endpointAuth.String(), err)
	}

	return &envelope.KeyExchange{Password: pwKey, Sign: signKey, Seq: seq}, nil
}

func (c *Client) readPlain(ctx context.Context, ep Endpoint, v any) error {
	body, err := c.post(ctx, "", ep, readBody, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newError(KindProtocol, ep.String(), fmt.Errorf("invalid key reply: %w", err))
	}
	return nil
}
