// The main package for the directorycrawler executable.
package main

import (
	"github.com/JakeFAU/directory-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
