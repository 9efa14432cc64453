// The main package for the article-scraper executable.
package main

import (
	"github.com/JakeFAU/article-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
