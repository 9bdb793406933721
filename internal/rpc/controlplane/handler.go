package controlplane

import (
	"context"
	"encoding/json"
	"fmt"

	"pulsefeed/internal/broker"
)

// call is the envelope every controller_rpc request carries: a method name
// plus its JSON-encoded parameters, mirroring the original CLI's
// _RpcProxy.__getattr__ dispatch onto one RPC proxy object.
type call struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler adapts Service to a single broker.RPCHandler bound to
// broker.ExchangeControllerRPC, demultiplexing by the request's "method"
// field onto the five operations spec §4.7 names.
func Handler(svc *Service) broker.RPCHandler {
	return func(ctx context.Context, body []byte) ([]byte, error) {
		var c call
		if err := json.Unmarshal(body, &c); err != nil {
			return encodeReply(nil, fmt.Errorf("controlplane: malformed request: %w", err))
		}

		switch c.Method {
		case "feeds_list":
			var params struct {
				Format string `json:"format"`
				Header bool   `json:"header"`
			}
			if err := json.Unmarshal(c.Params, &params); err != nil {
				return encodeReply(nil, err)
			}
			output, err := svc.FeedsList(ctx, params.Format, params.Header)
			return encodeReply(output, err)

		case "feeds_load":
			var params struct {
				Feeds []FeedInput `json:"feeds"`
			}
			if err := json.Unmarshal(c.Params, &params); err != nil {
				return encodeReply(nil, err)
			}
			messages := svc.FeedsLoad(ctx, params.Feeds)
			return encodeReply(messages, nil)

		case "recsystem_register":
			var params struct {
				Name       string   `json:"name"`
				Owners     []string `json:"owners"`
				IsBaseline bool     `json:"is_baseline"`
			}
			if err := json.Unmarshal(c.Params, &params); err != nil {
				return encodeReply(nil, err)
			}
			id, token, err := svc.RecsystemRegister(ctx, params.Name, params.Owners, params.IsBaseline)
			if err != nil {
				return encodeReply(nil, err)
			}
			return encodeReply(map[string]any{"recsystem_id": id, "token": token}, nil)

		case "recsystem_refresh_token":
			var params struct {
				IDOrName string `json:"id_or_name"`
			}
			if err := json.Unmarshal(c.Params, &params); err != nil {
				return encodeReply(nil, err)
			}
			token, err := svc.RecsystemRefreshToken(ctx, params.IDOrName)
			return encodeReply(token, err)

		case "status":
			ok, err := svc.Status(ctx)
			return encodeReply(ok, err)

		default:
			return encodeReply(nil, fmt.Errorf("controlplane: unknown method %q", c.Method))
		}
	}
}

func encodeReply(result any, err error) ([]byte, error) {
	r := reply{}
	if err != nil {
		r.Error = err.Error()
	} else if result != nil {
		encoded, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			r.Error = marshalErr.Error()
		} else {
			r.Result = encoded
		}
	}
	body, marshalErr := json.Marshal(r)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return body, nil
}
