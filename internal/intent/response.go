// Package intent holds the response shape shared by every operation that can
// be rejected by a business rule.
package intent

// Response is the outcome of an intent. Rejections are reported here and
// never as Go errors.
type Response struct {
	Success bool           `json:"intent_success"`
	Message string         `json:"intent_message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Succeed returns a successful response with the given message.
func Succeed(message string) Response {
	return Response{Success: true, Message: message}
}

// Fail returns a failed response with the given message.
func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// With returns a copy of r with key set in its payload.
func (r Response) With(key string, value any) Response {
	payload := make(map[string]any, len(r.Payload)+1)
	for k, v := range r.Payload {
		payload[k] = v
	}
	payload[key] = value
	r.Payload = payload
	return r
}
