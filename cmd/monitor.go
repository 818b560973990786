package cmd

import (
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/go-resty/resty/v2"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

const monitorHistory = 60

// StatsClient reads /v1/stats of a running server.
type StatsClient struct {
	client *resty.Client
}

func NewStatsClient(baseURL, token string, timeout time.Duration) *StatsClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &StatsClient{client: c}
}

func (s *StatsClient) Fetch() (model.HubStats, error) {
	var stats model.HubStats
	resp, err := s.client.R().SetResult(&stats).Get("/v1/stats")
	if err != nil {
		return stats, err
	}
	if resp.IsError() {
		return stats, fmt.Errorf("stats: %s", resp.Status())
	}
	return stats, nil
}

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Watch online users and offline queue depth of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://127.0.0.1:8080", Usage: "Base URL of the HTTP listener"},
			&cli.StringFlag{Name: "token", Usage: "Bearer token when auth is enabled"},
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "Polling interval"},
		},
		Action: func(c *cli.Context) error {
			client := NewStatsClient(c.String("addr"), c.String("token"), c.Duration("interval"))
			return runMonitor(client, c.String("addr"), c.Duration("interval"))
		},
	}
}

func runMonitor(client *StatsClient, addr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	defer ui.Close()

	summary := widgets.NewParagraph()
	summary.Title = fmt.Sprintf(" %s  (q to quit) ", addr)
	summary.SetRect(0, 0, 60, 9)

	online := widgets.NewSparkline()
	online.Title = "online users"
	online.LineColor = ui.ColorGreen
	queued := widgets.NewSparkline()
	queued.Title = "queued messages"
	queued.LineColor = ui.ColorYellow

	history := widgets.NewSparklineGroup(online, queued)
	history.Title = " history "
	history.SetRect(0, 9, 60, 21)

	refresh := func() {
		stats, err := client.Fetch()
		if err != nil {
			summary.Text = fmt.Sprintf("[error](fg:red) %v", err)
			ui.Render(summary, history)
			return
		}
		summary.Text = renderStats(stats)
		online.Data = appendSample(online.Data, float64(stats.OnlineUsers))
		queued.Data = appendSample(queued.Data, float64(stats.QueuedMessages))
		ui.Render(summary, history)
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			if e.ID == "q" || e.ID == "<C-c>" {
				return nil
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func renderStats(s model.HubStats) string {
	return fmt.Sprintf(
		"online users      %d\nconnections       %d\nqueued messages   %d\nqueued recipients %d\ndropped messages  %d\nsession policy    %s\nuptime            %s",
		s.OnlineUsers, s.TotalConnections, s.QueuedMessages, s.QueuedRecipients,
		s.DroppedMessages, s.SessionPolicy, s.Uptime.Truncate(time.Second),
	)
}

func appendSample(data []float64, v float64) []float64 {
	data = append(data, v)
	if len(data) > monitorHistory {
		data = data[len(data)-monitorHistory:]
	}
	return data
}
