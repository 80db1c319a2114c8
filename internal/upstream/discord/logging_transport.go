package discord

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport logs each upstream round trip at debug level. Headers are
// never logged since they carry the user's token.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *zap.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.Logger.Warn("Upstream request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	t.Logger.Debug("Upstream request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

func (t *LoggingTransport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}
