// Command proxy is a caching HTTP/1.0 forwarding proxy.
//
// Usage:
//
//	proxy <port> [--config proxy.yaml] [--log-level debug]
package main

func main() {
	Execute()
}
