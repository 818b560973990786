package model

import "time"

type HubStats struct {
	OnlineUsers      int           `json:"online_users"`
	TotalConnections int           `json:"total_connections"`
	QueuedMessages   int           `json:"queued_messages"`
	QueuedRecipients int           `json:"queued_recipients"`
	DroppedMessages  uint64        `json:"dropped_messages"`
	SessionPolicy    string        `json:"session_policy"`
	Uptime           time.Duration `json:"uptime"`
}
