// The main package for the showtime-alerts executable.
package main

import (
	"github.com/cinewatch/showtime-alerts/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
