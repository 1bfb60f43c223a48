package obs

import "go.uber.org/zap"

// NewLogger returns a production zap.SugaredLogger: JSON-encoded,
// info level and above, suitable for the orchestrator and compactor to
// share.
func NewLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// NewNopLogger returns a logger that discards everything, for tests and
// callers that don't want log output.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
