// The main package for the articlepub executable.
package main

import (
	"github.com/JakeFAU/article-epub/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
