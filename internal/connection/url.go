package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// StreamURL derives the WebSocket endpoint from the REST base URL:
// http becomes ws, https becomes wss, a bare host gets ws://, and path is appended.
func StreamURL(restBase, path string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(restBase), "/")
	if base == "" {
		return "", fmt.Errorf("empty base url")
	}

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	default:
		base = "ws://" + base
	}

	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream url %q has no host", u.String())
	}
	return u.String(), nil
}
