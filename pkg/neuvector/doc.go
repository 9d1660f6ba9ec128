// Package neuvector is a minimal client for the NeuVector controller REST
// API. It builds authenticated requests against either the controller
// itself or the Rancher cluster proxy in front of it, and hands back the raw
// status code and body. Interpreting the status code is left to callers.
package neuvector
