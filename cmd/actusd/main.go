// Command actusd runs the asset lifecycle service and its operator tools.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
