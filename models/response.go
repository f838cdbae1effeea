package models

// MessageResponse is the body every API route answers with.
type MessageResponse struct {
	Message interface{} `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
