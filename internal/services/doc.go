// Package services hosts the clients for external collaborators (payload
// transform, upload sink) and the shared failure taxonomy the pipeline uses
// to classify item errors.
package services
