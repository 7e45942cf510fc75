// Package api provides the HTTP surface of mnemo: the provider webhook, the
// memory API and the MCP endpoint.
package api

import (
	"net/http"

	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Driver backs the stats endpoint.
	Driver storage.Driver

	// Ingest records webhook deliveries.
	Ingest *ingest.Service

	// Identity resolves phone numbers to users.
	Identity *identity.Store

	// Recorder serves direct memory writes and interaction reads.
	Recorder *recorder.Recorder

	// Searcher answers memory searches.
	Searcher *recall.Searcher

	// Inferer derives direct-write memories. Optional; without it
	// POST /memories answers 503.
	Inferer memory.Inferer

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// AckMessage is the webhook reply for a newly recorded message.
	AckMessage string

	// ListLimit caps the memories returned by the /list command.
	ListLimit int
}
