// mediavault ingests media uploads into a fixed set of root directories,
// deduplicates them by content hash and derives JPEG thumbnails.
//
// Commands:
//   - serve: HTTP API plus a Prometheus metrics endpoint
//   - scan, ingest, mkdir: the same operations from the shell
//   - token: issue bearer tokens for API clients
package main

import "github.com/fruitsalade/mediavault/internal/cli"

func main() {
	cli.Execute()
}
