package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client is a JSON-RPC connection to the daemon's control socket.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return c.conn.Close()
	}
	return c.client.Close()
}

func invoke[Resp any](c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.client.Call(ServiceName+"."+method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Start asks a stopped daemon to reconnect to the director.
func (c *Client) Start() (*StartResponse, error) {
	return invoke[StartResponse](c, "Start", StartRequest{})
}

// Stop disconnects from the director. The process keeps running.
func (c *Client) Stop() (*StopResponse, error) {
	return invoke[StopResponse](c, "Stop", StopRequest{})
}

func (c *Client) Status() (*StatusResponse, error) {
	return invoke[StatusResponse](c, "Status", StatusRequest{})
}

// Overlays lists every overlay.
func (c *Client) Overlays() (*OverlaysResponse, error) {
	return invoke[OverlaysResponse](c, "Overlays", OverlaysRequest{})
}

// Describe fetches one overlay by name or channel.
func (c *Client) Describe(overlay string) (*DescribeResponse, error) {
	return invoke[DescribeResponse](c, "Describe", DescribeRequest{Overlay: overlay})
}

// Send injects an event and returns the overlay state after it was applied.
func (c *Client) Send(req SendRequest) (*SendResponse, error) {
	return invoke[SendResponse](c, "Send", req)
}

func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	return invoke[EventsResponse](c, "Events", req)
}

// LogTail returns buffered daemon log events. With Follow set it blocks up
// to WaitMillis for new ones.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return invoke[LogTailResponse](c, "LogTail", req)
}
