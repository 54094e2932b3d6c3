package models

// Post is the normalized blog post served to the community page
type Post struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Url         string `json:"url"`
	Date        string `json:"date"`
	Image       string `json:"image,omitempty"`
}

// Placeholders used when a source record lacks a field
const (
	UntitledPost  = "Untitled Post"
	NoDescription = "No description available."
	NoUrl         = "#"
	NoDate        = "No date"
)

// ErrorResponse is the body returned alongside 5xx statuses
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
