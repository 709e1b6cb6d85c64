//go:build !noautoencoder

package autoencoder

// Available reports whether reconstruction scoring is compiled in. Build with
// the noautoencoder tag to leave it out.
func Available() bool {
	return true
}
