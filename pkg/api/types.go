package api

import "github.com/uhyunpark/nextprice-keeper/pkg/keeper"

// API response types for REST endpoints and WebSocket messages

// HealthResponse is served on /health
type HealthResponse struct {
	Status    string `json:"status"`
	LastBlock uint64 `json:"lastBlock"`
}

// OrdersResponse lists pending orders in submission order
type OrdersResponse struct {
	Count  int                `json:"count"`
	Orders []keeper.OrderView `json:"orders"`
}

// ExecutionsResponse lists journaled execution attempts, newest first
type ExecutionsResponse struct {
	Account    string             `json:"account,omitempty"`
	Executions []keeper.Execution `json:"executions"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is sent by clients: {"op":"subscribe","channels":["orders"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage wraps every message pushed to clients
type WSMessage struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}
