// Package api defines the transport-neutral DTOs exchanged between the
// daemon's HTTP surface and its clients, plus the conversions from queue
// records into those DTOs.
package api
