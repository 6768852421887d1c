// -- cmd/version.go --
package cmd

// Version is overridden at build time via
// -ldflags "-X github.com/xkilldash9x/suture-cli/cmd.Version=...".
var Version = "0.1.0-dev"
