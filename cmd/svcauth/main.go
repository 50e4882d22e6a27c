// Command svcauth issues service-account access tokens and custom tokens,
// verifies identity tokens and prints the identity-token signing keys.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
