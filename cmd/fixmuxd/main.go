// Command fixmuxd runs the location-fix multiplexer daemon and its clients.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
