// ABOUTME: Version information for tinysynth binaries
// ABOUTME: Shared by the CLI, the stream server hello, and the listener tool
package version

import "fmt"

const (
	Version      = "0.1.0"
	Product      = "tinysynth"
	Manufacturer = "mitchpk"
)

// String returns "tinysynth 0.1.0 (mitchpk)"
func String() string {
	return fmt.Sprintf("%s %s (%s)", Product, Version, Manufacturer)
}
