// Command hubspot-crawler fetches a list of URLs and classifies each one
// for HubSpot usage.
package main

import (
	cmd "github.com/whitehat-seo/hubspot-crawler/internal/cli"
)

// Version is stamped at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	cmd.Execute()
}
