package main

import (
	"os"

	"multidrive/cmd"
)

// main is the entry point for the entire application. All argument parsing,
// flag handling and command wiring live in the 'cmd' package.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
