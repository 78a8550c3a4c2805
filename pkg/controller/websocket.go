package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HandleWebSocket registers a client for the periodic top-N push. Clients may
// send {"type":"view","data":{"sortBy":"avg","limit":10}} to change ordering.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[ws] upgrade error", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		view: ClientView{SortBy: c.sortBy, Limit: c.topN},
	}

	c.clientsMutex.Lock()
	c.clients[client] = true
	c.clientsMutex.Unlock()

	defer c.removeClient(client)

	c.sendTop(client)

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type != "view" {
			continue
		}

		var view ClientView
		if err := json.Unmarshal(msg.Data, &view); err != nil {
			slog.Error("[ws] failed to parse view", "error", err)
			continue
		}
		if view.SortBy == "" {
			view.SortBy = c.sortBy
		}
		if view.Limit <= 0 {
			view.Limit = c.topN
		}

		client.mu.Lock()
		client.view = view
		client.mu.Unlock()

		c.sendTop(client)
	}
}

// Run pushes the top-N table to every client each interval until ctx ends.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeClients()
			return
		case <-ticker.C:
			c.PushTop()
		}
	}
}

// PushTop sends each client the table in its requested view.
func (c *Controller) PushTop() {
	for _, client := range c.snapshotClients() {
		c.sendTop(client)
	}
}

func (c *Controller) sendTop(client *Client) {
	client.mu.RLock()
	view := client.view
	client.mu.RUnlock()

	list, err := buildList(c.handler.Data(), view.SortBy, view.Limit, "")
	if err != nil {
		c.send(client, errorMessage(err))
		return
	}

	data, err := json.Marshal(list)
	if err != nil {
		slog.Error("[ws] failed to marshal fingerprints", "error", err)
		return
	}
	c.send(client, WSMessage{Type: "fingerprints", Data: data})
}

func errorMessage(err error) WSMessage {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return WSMessage{Type: "error", Data: data}
}

func (c *Controller) broadcast(msg WSMessage) {
	for _, client := range c.snapshotClients() {
		c.send(client, msg)
	}
}

func (c *Controller) send(client *Client, msg WSMessage) {
	client.write.Lock()
	defer client.write.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteJSON(msg); err != nil {
		slog.Debug("[ws] dropping client", "error", err)
		c.removeClient(client)
	}
}

func (c *Controller) snapshotClients() []*Client {
	c.clientsMutex.RLock()
	defer c.clientsMutex.RUnlock()

	clients := make([]*Client, 0, len(c.clients))
	for client := range c.clients {
		clients = append(clients, client)
	}
	return clients
}

func (c *Controller) removeClient(client *Client) {
	c.clientsMutex.Lock()
	_, ok := c.clients[client]
	delete(c.clients, client)
	c.clientsMutex.Unlock()

	if ok {
		client.conn.Close()
	}
}

func (c *Controller) closeClients() {
	for _, client := range c.snapshotClients() {
		client.write.Lock()
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		client.write.Unlock()
		c.removeClient(client)
	}
}
