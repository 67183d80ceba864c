// Package http exposes sites, server-side assignment and metric ingestion
// over HTTP, and provides the matching client.
package http
