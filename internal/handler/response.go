package handler

// Response is the envelope every endpoint answers with. Status is always
// "success" or "error"; Message is only set on errors.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewSuccessResponse wraps a payload. A nil payload is fine for operations
// with nothing to return; the data field is then omitted.
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// NewErrorResponse carries a human-readable failure message.
func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}
