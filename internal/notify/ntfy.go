package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/go-resty/resty/v2"
)

// NtfyProvider sends notifications via an ntfy server.
type NtfyProvider struct {
	url    string
	topic  string
	client *resty.Client
}

// NewNtfy creates a new ntfy notification provider.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Title", notif.Title).
		SetHeader("Priority", severityToNtfyPriority(notif.Severity)).
		SetHeader("Tags", ntfyTags(notif)).
		SetBody(notif.Message).
		Post(n.url + "/" + n.topic)
	if err != nil {
		return fmt.Errorf("ntfy: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// ntfyStyle is the priority and emoji tag ntfy renders for a severity.
type ntfyStyle struct {
	priority string
	tag      string
}

var ntfyStyles = map[string]ntfyStyle{
	model.SeverityCritical: {"5", "rotating_light"},
	model.SeverityWarning:  {"3", "warning"},
	model.SeverityInfo:     {"2", "information_source"},
}

func severityToNtfyPriority(severity string) string {
	if s, ok := ntfyStyles[severity]; ok {
		return s.priority
	}
	return "3"
}

func ntfyTags(n model.Notification) string {
	tags := make([]string, 0, 3)
	if s, ok := ntfyStyles[n.Severity]; ok {
		tags = append(tags, s.tag)
	}
	if n.AlertType != "" {
		tags = append(tags, n.AlertType)
	}
	if n.Resolved {
		tags = append(tags, "white_check_mark")
	}
	return strings.Join(tags, ",")
}
