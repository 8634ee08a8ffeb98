// Package tlsroots builds the TLS configuration of the HTTP listener.
//
//   - watcher.go: serving key pair, reloaded when its files change
//   - roots.go: client CA pool for mutual TLS and the server tls.Config
package tlsroots
