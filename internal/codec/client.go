package codec

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
// Full method names of the inference service. Requests and responses are
// google.protobuf.Struct messages so no generated stubs are required.
const (
	MethodDescribe = "/focus.v1.Perception/Describe"
	MethodGenerate = "/focus.v1.Perception/Generate"
)
// #endregion methods

// #region client-struct
// Client wraps the gRPC connection to a remote inference service.
type Client struct {
	conn grpc.ClientConnInterface
	// closer is nil when the connection was injected.
	closer interface{ Close() error }
}
// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// The caller keeps ownership of conn.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
// #endregion close

// #region describe
// Describe sends an image with a prompt to the perception model.
func (c *Client) Describe(ctx context.Context, prompt string, image []byte) (string, error) {
	fields := map[string]interface{}{"prompt": prompt}
	if len(image) > 0 {
		fields["image"] = base64.StdEncoding.EncodeToString(image)
	}
	text, err := c.call(ctx, MethodDescribe, fields)
	if err != nil {
		return "", fmt.Errorf("describe rpc: %w", err)
	}
	return text, nil
}
// #endregion describe

// #region generate
// Generate sends a text-only prompt to the inference service.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := c.call(ctx, MethodGenerate, map[string]interface{}{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("generate rpc: %w", err)
	}
	return text, nil
}
// #endregion generate

// #region call
func (c *Client) call(ctx context.Context, method string, fields map[string]interface{}) (string, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return "", err
	}
	v, ok := resp.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("response missing text field")
	}
	return v.GetStringValue(), nil
}
// #endregion call
