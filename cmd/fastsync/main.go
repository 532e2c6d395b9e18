// Command fastsync synchronizes a local directory to a remote one,
// transferring only the parts of each file that changed. Run with
// --server, it instead acts as the remote half of the protocol, reading
// requests from stdin and writing responses to stdout — the mode an
// invocation of fastsync spawns over SSH on the other end of a sync.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Error().Err(err).Msg("fastsync: run failed")
		os.Exit(1)
	}
}
