package devtools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Version is the /json/version document served by a browser started with
// --remote-debugging-port.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Probe checks that a remote debugging endpoint is up before a driver attaches.
type Probe struct {
	baseURL    string
	interval   time.Duration
	httpClient *resty.Client
}

func NewProbe(baseURL string) *Probe {
	client := resty.New().
		SetTimeout(5 * time.Second). // the endpoint is local
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Probe{
		baseURL:    strings.TrimRight(baseURL, "/"),
		interval:   500 * time.Millisecond,
		httpClient: client,
	}
}

// Version fetches the endpoint description once.
func (p *Probe) Version(ctx context.Context) (*Version, error) {
	var version Version
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&version).
		Get(p.baseURL + "/json/version")
	if err != nil {
		return nil, fmt.Errorf("devtools endpoint %s: %w", p.baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("devtools endpoint %s returned %s", p.baseURL, resp.Status())
	}
	if version.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("devtools endpoint %s did not report a websocket url", p.baseURL)
	}
	return &version, nil
}

// WaitReady polls Version until it succeeds or timeout elapses.
func (p *Probe) WaitReady(ctx context.Context, timeout time.Duration) (*Version, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Infof("🔌 Waiting for browser debugging endpoint at %s", p.baseURL)
	for attempt := 1; ; attempt++ {
		version, err := p.Version(ctx)
		if err == nil {
			log.Infof("✅ Connected to %s (protocol %s)", version.Browser, version.ProtocolVersion)
			return version, nil
		}
		log.Debugf("🔄 Debugging endpoint not ready (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("browser at %s not reachable within %s: %w", p.baseURL, timeout, err)
			}
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

func (p *Probe) Close() error {
	return p.httpClient.Close()
}
