// The main package for the niw-crawler executable.
package main

import (
	"github.com/JakeFAU/niw-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
