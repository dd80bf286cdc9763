package dockerx

// Container is a minimal container representation used by blogctl to avoid
// direct dependency on the Docker SDK outside this package. Fields cover the
// data needed to decide whether the managed service is running.
type Container struct {
	ID     string            `json:"Id"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Labels map[string]string `json:"Labels"`
	Names  []string          `json:"Names"`
}
