package config

// Version is the auditledger binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/auditledger/internal/config.Version=<tag>"
var Version = "dev"
