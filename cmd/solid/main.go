// Solid runs validators of the solid consensus protocol.
package main

import "github.com/relab/solid/internal/cli"

func main() {
	cli.Execute()
}
