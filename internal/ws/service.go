package ws

import "github.com/rs/zerolog"

// Service wires the registry and handler that serve every viewer connection.
type Service struct {
	registry *Registry
	handler  *Handler
}

// NewService creates a new WebSocket service. journal may be nil.
func NewService(bridge SessionBridge, journal Journal, logger zerolog.Logger) *Service {
	registry := NewRegistry(logger)
	handler := NewHandler(registry, bridge, journal, logger)

	return &Service{
		registry: registry,
		handler:  handler,
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Registry returns the connection registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Close flushes the event journal. Call it once no viewer is connected.
func (s *Service) Close() {
	s.handler.Close()
}
