package dto

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody holds the stable kind and a caller-safe message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HealthResponse reports service readiness.
type HealthResponse struct {
	Status string `json:"status"`
}
