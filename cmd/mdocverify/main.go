// Command mdocverify verifies ISO/IEC 18013-5 mobile documents from the
// command line: issuer signatures, device signatures, digest integrity,
// and validity windows.
package main

import (
	"fmt"
	"os"

	"github.com/go-mdoc/mdocverify/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
