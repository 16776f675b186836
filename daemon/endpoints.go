package daemon

const (
	statusEndpoint = "/status"
	tunEndpoint    = "/tun"
	subnetEndpoint = "/subnet"
)

// CreateTunRequest is the body of POST /tun. Name is optional; when empty
// the platform assigns the next free slot in its own numbering.
type CreateTunRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateSubnetRequest is the body of POST /subnet.
type CreateSubnetRequest struct {
	CIDR string `json:"cidr"`
}

// APIError is the JSON error body returned on any failed request.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
