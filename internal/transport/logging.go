package transport

import "sync/atomic"

// LoggingTransport implements the Transport interface by logging each
// frame at debug level.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Infof("using logging transport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)
	if f, ok := data.(Frame); ok {
		logger.Debugf("frame %d: features=%v eyes=%d", f.Seq, f.Features, len(f.Eyes))
		return nil
	}
	logger.Debugf("received (%T): %+v", data, data)
	return nil
}

// Sent reports how many messages were logged.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close logs the total.
func (lt *LoggingTransport) Close() error {
	logger.Infof("logging transport closed after %d messages", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
