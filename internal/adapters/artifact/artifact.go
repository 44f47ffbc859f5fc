// Package artifact stores rendered report documents and hands back
// stable references that the ledger records alongside each report.
package artifact

import "context"

// Store persists report documents. Implementations must make Put
// durable before returning: a reference handed out by Put is only
// recorded in the ledger after the bytes are safely written.
type Store interface {
	// Put writes the document under the given key and returns the
	// reference to record. Writing the same key twice overwrites.
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)

	// Get fetches a previously stored document by its reference.
	Get(ctx context.Context, ref string) ([]byte, error)
}
