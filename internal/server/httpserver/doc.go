// Package httpserver is the request intake and dispatch engine.
//
// A Server accepts connections and wraps each one in a reference-counted
// Conn over a plain or TLS ByteSource. For every request a Reader pulls
// bytes into the incremental parser under one whole-message deadline and
// reports exactly one outcome to the Dispatcher:
//
//   - protocol failure: canonical 400 response, connection closed
//   - transport failure: connection closed without a response
//   - parsed request: trailing-slash normalization, bounded redirect
//     resolution, optional Authenticator gate, longest-prefix handler
//     lookup and fault-isolated invocation
//
// Handlers and authenticators answer through ResponseWriter or the
// canonical responders (400, 403, 404, 405, 500).
package httpserver
