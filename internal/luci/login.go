package luci

import (
	"context"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
)

// login sends the credentials and, on a conflict with evict set, sends them
// once more with confirm=true under the same key material. It returns the
// stok and whether another admin was evicted.
func (c *Client) login(ctx context.Context, codec *envelope.Codec, password string, evict bool) (string, bool, error) {
	outcome, err := c.sendLogin(ctx, codec, password, false)
	if err != nil {
		return "", false, err
	}

	evicted := false
	if _, conflict := outcome.(LoginSessionConflict); conflict && evict {
		c.logger.Info("another admin is logged in, evicting", "host", c.baseURL)
		outcome, err = c.sendLogin(ctx, codec, password, true)
		if err != nil {
			return "", false, err
		}
		evicted = true
	}

	granted, ok := outcome.(LoginGranted)
	if !ok {
		return "", false, outcome.Err()
	}
	return granted.Token, evicted, nil
}

func (c *Client) sendLogin(ctx context.Context, codec *envelope.Codec, password string, confirm bool) (LoginOutcome, error) {
	op := endpointLogin.String()

	env, err := codec.EncryptLogin(password, confirm)
	if err != nil {
		return nil, newError(KindProtocol, op, err)
	}
	body, err := c.post(ctx, "", endpointLogin, env.Encode(), false)
	if err != nil {
		return nil, err
	}
	plain, err := codec.DecryptResponse(body)
	if err != nil {
		return nil, withOp(ClassifyCodecError(err), op)
	}
	return ClassifyLogin(plain), nil
}
