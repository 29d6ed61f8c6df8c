// restspy is the command line interface to the restspy test-double
// server.
package main

import "github.com/dmrschmidt/RestSpy/pkg/cli"

func main() {
	cli.Execute()
}
