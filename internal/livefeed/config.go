package livefeed

import (
	"fmt"

	"github.com/rickgao/livefeed/internal/config"
	"github.com/rickgao/livefeed/internal/connection"
)

// FromConfig derives a feed configuration from the loaded settings.
// Zero values fall back to the connection defaults.
func FromConfig(apiCfg config.APIConfig, stream config.StreamConfig) (Config, error) {
	url, err := connection.StreamURL(apiCfg.RestURL, stream.Path)
	if err != nil {
		return Config{}, fmt.Errorf("stream url: %w", err)
	}

	ctrl := connection.DefaultControllerConfig()
	ctrl.Client.URL = url
	if stream.ConnectTimeout > 0 {
		ctrl.Client.HandshakeTimeout = stream.ConnectTimeout
	}
	if stream.PingInterval > 0 {
		ctrl.Client.PingInterval = stream.PingInterval
	}
	if stream.PingTimeout > 0 {
		ctrl.Client.PingTimeout = stream.PingTimeout
	}
	if stream.WriteTimeout > 0 {
		ctrl.Client.WriteTimeout = stream.WriteTimeout
	}
	if stream.BufferSize > 0 {
		ctrl.Client.BufferSize = stream.BufferSize
	}
	if stream.Backoff.BaseDelay > 0 {
		ctrl.Backoff.Base = stream.Backoff.BaseDelay
	}
	if stream.Backoff.MaxDelay > 0 {
		ctrl.Backoff.Max = stream.Backoff.MaxDelay
	}
	if stream.Backoff.MaxAttempts > 0 {
		ctrl.Backoff.MaxAttempts = stream.Backoff.MaxAttempts
	}

	return Config{Controller: ctrl, Enabled: stream.IsEnabled()}, nil
}
