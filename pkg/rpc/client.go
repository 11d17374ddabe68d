package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Client is a minimal in-process JSON-RPC 2.0 client for a Server's
// stdio wire format, used by tests and local tooling that want to
// drive a Server without spawning a subprocess.
type Client struct {
	Out    io.Writer
	In     *bufio.Reader
	nextID int
}

// NewClient wraps the write side (server's stdin) and read side
// (server's stdout) of a Server connection.
func NewClient(out io.Writer, in io.Reader) *Client {
	return &Client{Out: out, In: bufio.NewReader(in)}
}

// CallTool sends a tools/call request for name with arguments and
// blocks for the matching response line.
func (c *Client) CallTool(name string, arguments interface{}) (*Response, error) {
	c.nextID++
	params, err := json.Marshal(toolsCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("rpc: encode params: %w", err)
	}

	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: "tools/call", Params: params}
	if err := c.send(req); err != nil {
		return nil, err
	}
	return c.recv()
}

// ListTools sends a tools/list request and blocks for the response.
func (c *Client) ListTools() (*Response, error) {
	c.nextID++
	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: "tools/list"}
	if err := c.send(req); err != nil {
		return nil, err
	}
	return c.recv()
}

func (c *Client) send(req Request) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}
	encoded = append(encoded, '\n')
	_, err = c.Out.Write(encoded)
	return err
}

func (c *Client) recv() (*Response, error) {
	line, err := c.In.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("rpc: read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("rpc: decode response: %w", err)
	}
	return &resp, nil
}
