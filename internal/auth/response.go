package auth

import "net/http"

// User-facing messages for denied requests.
const (
	MessageMissingCredential = "Authentication token not provided."
	MessageUnauthenticated   = "Invalid or expired authentication token."
	MessageForbidden         = "You must be an admin to access this resource."
	MessageEvaluatorError    = "Unable to verify admin privileges."
)

// Message is the JSON body returned for a denied request.
type Message struct {
	Message string `json:"message"`
}

// Response is the transport-neutral rendering of a verdict.
type Response struct {
	Status int
	Body   *Message
}

// Respond maps a verdict to the status and body a transport adapter should
// write. Allowed verdicts carry no body; the wrapped handler responds.
func Respond(v Verdict) Response {
	if v.Allowed() {
		return Response{Status: http.StatusOK}
	}
	switch v.Reason {
	case ReasonMissingCredential:
		return Response{Status: http.StatusUnauthorized, Body: &Message{Message: MessageMissingCredential}}
	case ReasonUnauthenticated:
		return Response{Status: http.StatusUnauthorized, Body: &Message{Message: MessageUnauthenticated}}
	case ReasonEvaluatorError:
		return Response{Status: http.StatusForbidden, Body: &Message{Message: MessageEvaluatorError}}
	default:
		return Response{Status: http.StatusForbidden, Body: &Message{Message: MessageForbidden}}
	}
}
