package judgment

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// assessMethod is the full RPC method name on the judgment service.
const assessMethod = "/judgment.JudgmentService/Assess"

// #region client

// Client wraps the gRPC connection to the external judgment service. The
// service owns its own proto schema, so requests and responses travel as
// structpb payloads over a raw invoke instead of generated stubs.
type Client struct {
	conn    *grpc.ClientConn
	invoker grpc.ClientConnInterface
}

// NewClient connects to the judgment gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoker: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected connection.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(invoker grpc.ClientConnInterface) *Client {
	return &Client{invoker: invoker}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client

// #region assess

// Assess calls the judgment service once for a turn.
func (c *Client) Assess(ctx context.Context, tc TurnContext) (Assessment, error) {
	meta := make(map[string]interface{}, len(tc.Metadata))
	for k, v := range tc.Metadata {
		meta[k] = v
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"turn_id":        tc.TurnID,
		"session_id":     tc.SessionID,
		"message_length": tc.MessageLength,
		"metadata":       meta,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("build assess request: %w", err)
	}

	var resp structpb.Struct
	if err := c.invoker.Invoke(ctx, assessMethod, req, &resp); err != nil {
		return Assessment{}, fmt.Errorf("assess rpc: %w", err)
	}
	return parseAssessment(&resp), nil
}

// parseAssessment decodes the judgment response. Missing fields degrade to
// the unsafe default rather than erroring.
func parseAssessment(resp *structpb.Struct) Assessment {
	fields := resp.GetFields()
	a := Assessment{
		Safe:       fields["safe"].GetBoolValue(),
		Confidence: fields["confidence"].GetNumberValue(),
	}
	for _, v := range fields["issues"].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			a.Issues = append(a.Issues, s)
		}
	}
	return a
}

// #endregion assess
