// Command warden runs and operates warden worker processes.
//
//	warden worker --config warden.yaml
//	warden push --class warden.Echo --args '{"msg":"hi"}'
//	warden pause critical
//	warden leader
//	warden orphans
//	warden pushback
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
