package health

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// The MCP handshake is a single newline-delimited JSON-RPC round trip: send
// tools/list, count the tools in the reply. Anything beyond that is the
// application's business, not the supervisor's.

type mcpRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  *mcpToolsResult `json:"result"`
	Error   *mcpError       `json:"error"`
}

type mcpToolsResult struct {
	Tools []json.RawMessage `json:"tools"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func countMCPTools(ctx context.Context, host string, port uint16, timeout time.Duration) (int, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := mcpRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list", Params: map[string]any{}}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return 0, fmt.Errorf("send tools/list: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return 0, fmt.Errorf("read tools/list reply: %w", err)
	}
	var resp mcpResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return 0, fmt.Errorf("decode tools/list reply: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return 0, errors.New("tools/list reply carries no result")
	}
	return len(resp.Result.Tools), nil
}
