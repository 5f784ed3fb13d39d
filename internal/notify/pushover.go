package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// DefaultPushoverEndpoint is the Pushover messages API.
const DefaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	UserKey  string
	APIToken string
	Endpoint string
	Timeout  time.Duration
}

// Pushover sends alerts as Pushover push notifications.
type Pushover struct {
	cfg    PushoverConfig
	client *resty.Client
}

// NewPushover builds a Pushover notifier. Both credentials are required.
func NewPushover(cfg PushoverConfig) (*Pushover, error) {
	if cfg.UserKey == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("pushover user key and api token are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultPushoverEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Pushover{cfg: cfg, client: client}, nil
}

// Notify posts the alert message.
func (p *Pushover) Notify(ctx context.Context, alert stock.Alert) error {
	form := map[string]string{
		"token":   p.cfg.APIToken,
		"user":    p.cfg.UserKey,
		"message": alert.Message,
	}
	if alert.Name != "" && alert.Name != alert.URL {
		form["title"] = alert.Name
	}
	if alert.URL != "" {
		form["url"] = alert.URL
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(p.cfg.Endpoint)
	if err != nil {
		return deliveryError("pushover", err)
	}
	if resp.IsError() {
		return deliveryError("pushover", fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}
