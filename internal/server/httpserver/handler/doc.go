// Package handler contains the built-in services that can be mounted on a
// routemesh dispatcher.
//
// Services are plain httpserver.Handler values. The configuration layer
// refers to them by name and builds them through New:
//
//   - cookie: lists request cookies and adds or deletes them on demand
//   - echo: dumps the received request as plain text
//   - file: serves a directory tree under the mounted resource
//   - health: reports liveness and build information as JSON
//   - metrics: exposes the Prometheus registry in text format
package handler
