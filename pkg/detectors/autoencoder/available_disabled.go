//go:build noautoencoder

package autoencoder

// Available reports whether reconstruction scoring is compiled in.
func Available() bool {
	return false
}
