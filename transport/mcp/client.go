package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/mcp-training/gameroom/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Game Room Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Game Room Server - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Rooms are identified by a 5 character code made of lowercase letters and
digits. Players join a room over WebSocket at /ws/game?room_id=<code>; every
message a player sends is echoed to everyone in the room.

AVAILABLE TOOLS:
- create_room: Create a new room and get its code
- list_rooms: List live rooms with member counts
- get_room: Get details and the join URL of a room
- close_room: Close a room, disconnecting its members
- server_health: Check that the server is up`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	roomIDSchema := map[string]interface{}{
		"type":        "string",
		"pattern":     "^[a-z0-9]{5}$",
		"description": "Room code, 5 lowercase letters or digits",
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_room",
		Description: "Create a new room and return its code",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleCreateRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all live rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get details of a specific room, including its WebSocket join URL",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": roomIDSchema,
			},
			Required: []string{"room_id"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "close_room",
		Description: "Close a room and disconnect all of its members",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": roomIDSchema,
			},
			Required: []string{"room_id"},
		},
	}, c.handleCloseRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_health",
		Description: "Check whether the game room server is reachable",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHealth)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// joinURL returns the WebSocket URL players use to join roomID
func (c *Client) joinURL(roomID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/ws/game?room_id=%s", base, roomID)
}

func stringArg(request mcp.CallToolRequest, name string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	value, _ := args[name].(string)
	return value
}

// Tool handlers

func (c *Client) handleCreateRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var created struct {
		RoomID string `json:"room_id"`
	}

	err := c.apiCall(ctx, "POST", "/rooms", nil, &created)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created room: %s\nJoin URL: %s\n", created.RoomID, c.joinURL(created.RoomID))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int                `json:"count"`
		Rooms []service.RoomInfo `json:"rooms"`
	}

	err := c.apiCall(ctx, "GET", "/rooms", nil, &response)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("No live rooms.\n"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Live Rooms (%d):\n\n", response.Count)
	for _, r := range response.Rooms {
		fmt.Fprintf(&sb, "- %s (%s, Created: %s)\n",
			r.ID, formatOccupancy(r.Members, r.MaxMembers), r.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID := stringArg(request, "room_id")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var info service.RoomInfo
	err := c.apiCall(ctx, "GET", "/rooms/"+roomID, nil, &info)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(c.formatRoomInfo(&info)), nil
}

func (c *Client) handleCloseRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID := stringArg(request, "room_id")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var response struct {
		Message string `json:"message"`
	}
	err := c.apiCall(ctx, "DELETE", "/rooms/"+roomID, nil, &response)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response.Message + "\n"), nil
}

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := c.do(ctx, "GET", "/health", nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("server unreachable: %v", err)), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return mcp.NewToolResultError(fmt.Sprintf("health check failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Server is healthy: %s\n", strings.TrimSpace(string(body)))), nil
}

func (c *Client) formatRoomInfo(info *service.RoomInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Room: %s\n", info.ID)
	fmt.Fprintf(&sb, "Members: %s\n", formatOccupancy(info.Members, info.MaxMembers))
	fmt.Fprintf(&sb, "Created: %s\n", info.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Join URL: %s\n", c.joinURL(info.ID))
	return sb.String()
}

func formatOccupancy(members, maxMembers int) string {
	if maxMembers == 0 {
		return fmt.Sprintf("%d members", members)
	}
	return fmt.Sprintf("%d/%d members", members, maxMembers)
}
