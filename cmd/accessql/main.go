// Command accessql parses queries, validates access rules and applies them
// from the command line.
//
// Usage:
//
//	accessql [flags] <command>
//
// parse needs no configuration. validate, rewrite and check load the entity
// mapping and the rules named by accessql.yaml or ACCESSQL_* variables.
package main

import "os"

func main() {
	os.Exit(Execute())
}
