// hfile reads remote HTTP resources like local files: stream byte ranges,
// inspect metadata, or download with resume.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
