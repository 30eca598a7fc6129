package httpclient

import "sync"

// Status reports a named client's circuit breaker state for health/monitoring
// endpoints.
type Status struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Failures returns the circuit breaker's current consecutive failure count.
func (c *Client) Failures() int {
	return c.breaker.Failures()
}

// Registry tracks named clients so their circuit breaker state can be
// observed from a health endpoint without threading every provider client
// through the handler layer individually.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds or replaces a named client in the registry.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Statuses returns the circuit breaker status of every registered client.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]Status, 0, len(r.clients))
	for name, client := range r.clients {
		statuses = append(statuses, Status{
			Name:     name,
			State:    client.CircuitState().String(),
			Failures: client.Failures(),
		})
	}
	return statuses
}

// DefaultRegistry is the process-wide registry used by provider clients
// constructed from configuration.
var DefaultRegistry = NewRegistry()
