package version

// Version is the application version, overridden at build time via
// -ldflags "-X github.com/Shaandjain/local-audio-pins/pkg/version.Version=...".
var Version = "dev"
