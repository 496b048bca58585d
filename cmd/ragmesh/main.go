// Command ragmesh answers questions with the agents declared in a
// configuration file.
//
//	ragmesh validate --config ragmesh.yaml
//	ragmesh ask --config ragmesh.yaml "How do I configure the model wrapper?"
//	ragmesh chat --config ragmesh.yaml --session alice
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
