//go:build !unix && !windows

package unix

// lockEndpoint is a no-op on platforms without file locking, Bind then relies on the
// exclusive bind of the socket alone
func lockEndpoint(string) (func(), error) {
	return func() {}, nil
}
