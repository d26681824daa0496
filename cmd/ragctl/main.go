// Command ragctl ingests files into the document index and asks questions
// against it from the shell.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
