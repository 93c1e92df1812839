// The main package for the census-catalog executable.
package main

import (
	"github.com/JakeFAU/census-catalog-builder/cmd"
)

func main() {
	cmd.Execute()
}
