// The main package for the domaincrawler executable.
package main

import (
	"github.com/JakeFAU/realtime-cpi-crawler/cmd/domaincrawler"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	domaincrawler.Execute()
}
