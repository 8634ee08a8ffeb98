// Package domain defines the message model and error taxonomy shared by
// the intake pipeline, the dispatcher and request handlers.
//
//   - Request / Response: mutable HTTP message records
//   - Version: protocol version helpers
//   - DomainError / ErrorKind: classified failures (protocol, transport,
//     redirect, authentication, handler)
package domain
