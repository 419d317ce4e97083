package dto

import "fcpd/internal/microservices/tcp"

type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// SessionResponse is the server status plus the observers the patch holds
type SessionResponse struct {
	tcp.Status
	Document  string   `json:"document"`
	Observers []string `json:"observers"`
}

type HandlersResponse struct {
	Keywords []string `json:"keywords"`
}

type PropertyDTO struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Group    string `json:"group,omitempty"`
	Value    string `json:"value"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

type ObjectDTO struct {
	Name       string        `json:"name"`
	Label      string        `json:"label"`
	TypeID     string        `json:"type_id"`
	Properties []PropertyDTO `json:"properties"`
}

type ObjectsResponse struct {
	Document string      `json:"document"`
	Objects  []ObjectDTO `json:"objects"`
	Count    int         `json:"count"`
}

// SendRequest carries FUDI words, e.g. {"values":["0","hello"]}
type SendRequest struct {
	Values []string `json:"values" binding:"required,min=1"`
}

// SelectionRequest selects Object (optionally a sub element) or clears
// the selection when Clear is set
type SelectionRequest struct {
	Object string `json:"object"`
	Sub    string `json:"sub"`
	Clear  bool   `json:"clear"`
}

type SelectionResponse struct {
	Selection []string `json:"selection"`
}
