// ABOUTME: Version information for the dialog output client
// ABOUTME: Reported in client/hello device info
package version

const (
	// Version is the software version
	Version = "0.1.0"

	// Product is the product name
	Product = "Dialog Output"

	// Manufacturer is the manufacturer name
	Manufacturer = "Resonate"
)
