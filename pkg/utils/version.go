// Package utils holds small helpers shared across parley packages that do
// not warrant a package of their own.
package utils

// Build metadata, overwritten at link time with
// -ldflags "-X github.com/papercomputeco/parley/pkg/utils.Version=...".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent is the User-Agent parley's HTTP clients send.
func UserAgent() string {
	return "parley/" + Version
}
