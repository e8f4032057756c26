package audit

// NoOpLogger discards every event.
type NoOpLogger struct{}

func NewNoOpLogger() Logger {
	return new(NoOpLogger)
}

func (n *NoOpLogger) Query(QueryOptions) (QueryResult, error) {
	return QueryResult{}, nil
}

func (n *NoOpLogger) Log(string, bool, map[string]interface{}) error {
	return nil
}

func (n *NoOpLogger) Close() error {
	return nil
}
