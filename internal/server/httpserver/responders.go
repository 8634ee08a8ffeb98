package httpserver

import (
	"html"
	"net/http"
	"strings"

	"github.com/yndnr/routemesh-go/internal/core/domain"
)

// RequestResponder answers a request with a canonical response.
type RequestResponder func(req *domain.Request, conn *Conn) error

// MessageResponder answers a request with a canonical response carrying
// a diagnostic message.
type MessageResponder func(req *domain.Request, conn *Conn, msg string) error

// Reason phrases used by the canonical responders.
const (
	StatusMessageBadRequest       = "Bad Request"
	StatusMessageForbidden        = "Forbidden"
	StatusMessageNotFound         = "Not Found"
	StatusMessageMethodNotAllowed = "Method Not Allowed"
	StatusMessageServerError      = "Server Error"
)

const badRequestHTML = "<html><head>\n" +
	"<title>400 Bad Request</title>\n" +
	"</head><body>\n" +
	"<h1>Bad Request</h1>\n" +
	"<p>Your browser sent a request that this server could not understand.</p>\n" +
	"</body></html>\n"

// RespondBadRequest sends the canonical 400 response. req may be nil.
func RespondBadRequest(req *domain.Request, conn *Conn) error {
	return sendHTML(req, conn, http.StatusBadRequest, StatusMessageBadRequest, badRequestHTML)
}

// RespondNotFound sends the canonical 404 response, naming the resource
// as the client originally requested it.
func RespondNotFound(req *domain.Request, conn *Conn) error {
	body := "<html><head>\n" +
		"<title>404 Not Found</title>\n" +
		"</head><body>\n" +
		"<h1>Not Found</h1>\n" +
		"<p>The requested URL " + html.EscapeString(req.OriginalResource()) +
		" was not found on this server.</p>\n" +
		"</body></html>\n"
	return sendHTML(req, conn, http.StatusNotFound, StatusMessageNotFound, body)
}

// RespondServerError sends the canonical 500 response with msg.
func RespondServerError(req *domain.Request, conn *Conn, msg string) error {
	body := "<html><head>\n" +
		"<title>500 Server Error</title>\n" +
		"</head><body>\n" +
		"<h1>Internal Server Error</h1>\n" +
		"<p>The server encountered an internal error: <strong>" + html.EscapeString(msg) +
		"</strong></p>\n" +
		"</body></html>\n"
	return sendHTML(req, conn, http.StatusInternalServerError, StatusMessageServerError, body)
}

// RespondForbidden sends the canonical 403 response for the current
// resource with reason. Authenticators use it to reject a request.
func RespondForbidden(req *domain.Request, conn *Conn, reason string) error {
	body := "<html><head>\n" +
		"<title>403 Forbidden</title>\n" +
		"</head><body>\n" +
		"<h1>Forbidden</h1>\n" +
		"<p>User not authorized to access the requested URL " + html.EscapeString(req.Resource()) +
		"</p><p><strong>\n" + html.EscapeString(reason) +
		"</strong></p>\n" +
		"</body></html>\n"
	return sendHTML(req, conn, http.StatusForbidden, StatusMessageForbidden, body)
}

// RespondMethodNotAllowed sends the canonical 405 response. When allowed
// is non-empty it is listed in the Allow header.
func RespondMethodNotAllowed(req *domain.Request, conn *Conn, allowed ...string) error {
	body := "<html><head>\n" +
		"<title>405 Method Not Allowed</title>\n" +
		"</head><body>\n" +
		"<h1>Not Allowed</h1>\n" +
		"<p>The requested method " + html.EscapeString(req.Method) +
		" is not allowed on this server.</p>\n" +
		"</body></html>\n"
	w := NewResponseWriter(req, conn)
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	return finishHTML(w, http.StatusMethodNotAllowed, StatusMessageMethodNotAllowed, body)
}

func sendHTML(req *domain.Request, conn *Conn, code int, msg, body string) error {
	return finishHTML(NewResponseWriter(req, conn), code, msg, body)
}

func finishHTML(w *ResponseWriter, code int, msg, body string) error {
	w.SetStatus(code)
	w.SetStatusMessage(msg)
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.WriteString(body)
	return w.Send()
}
