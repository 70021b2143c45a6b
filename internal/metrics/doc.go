// Package metrics holds the Prometheus collectors of the search engine and
// an optional HTTP listener exposing /metrics and /healthz.
//
// Collectors are package variables so any layer can record into them.
// Nothing is registered until Register is called from main.
package metrics
