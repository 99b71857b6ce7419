package version

// Version is the current version of the Ghostlink CLI.
// Release builds override it with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/Ghostlink/internal/version.Version=v1.0.0'"
var Version = "dev"
