package models

import "time"

// ConnectionLog records one outbound provider call, success or failure.
// Request headers and payloads are masked before they reach this struct.
type ConnectionLog struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Method         string    `json:"method"`
	RequestData    string    `json:"request_data,omitempty"`
	RequestHeaders string    `json:"request_headers,omitempty"`
	ResponseData   string    `json:"response_data,omitempty"`
	StatusCode     int       `json:"status_code"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LogStatusFor maps an HTTP status code to the log's Success/Error label.
func LogStatusFor(code int) string {
	if code >= 200 && code < 300 {
		return "Success"
	}
	return "Error"
}
