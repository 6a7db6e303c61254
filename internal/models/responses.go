package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// StoreHealthResponse represents a contact store health check response
// @Description Contact store health check response
type StoreHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Readable  bool          `json:"readable" example:"true"`                    // Whether the document could be loaded
	Contacts  int           `json:"contacts" example:"12"`                      // Number of stored threads
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Load latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ContactFormRequest is the public contact form payload
// @Description Contact form submission
type ContactFormRequest struct {
	Name    string `json:"name" example:"Jane"`
	Email   string `json:"email" example:"jane@example.com"`
	Message string `json:"message" example:"Hi"`
	Subject string `json:"subject,omitempty" example:"Course question"`
}

// ContactFormResponse is returned to the public form; it never exposes
// downstream notification failures.
// @Description Contact form response
type ContactFormResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Message sent successfully"`
}

// AdminAuthRequest represents the admin login request
type AdminAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminAuthResponse represents the admin login response
type AdminAuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UpdateStatusRequest is the body of the status/response admin operation
type UpdateStatusRequest struct {
	Status   string `json:"status" example:"responded"`
	Response string `json:"response,omitempty" example:"We'll help you"`
}

// RestartEmailServiceRequest is the body of the poller restart operation
type RestartEmailServiceRequest struct {
	IntervalMinutes int `json:"interval" example:"1"`
}

// AdminResponse is the structured success/failure envelope for admin operations
// @Description Admin operation response
type AdminResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	EmailError string             `json:"emailError,omitempty"`
	Contact    *Contact           `json:"contact,omitempty"`
	Contacts   []Contact          `json:"contacts,omitempty"`
	Report     *DiagnosticsReport `json:"report,omitempty"`
	Poll       *PollSummary       `json:"poll,omitempty"`
}

// PollSummary describes the outcome of one mailbox poll cycle
type PollSummary struct {
	Found     int `json:"found"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
