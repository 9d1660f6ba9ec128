// Package tls builds client TLS settings for talking to the controller or
// the management-plane gateway.
package tls
