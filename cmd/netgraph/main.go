// Command netgraph compiles neural-network graphs into Keras code and
// serves the editor API.
package main

import (
	"fmt"
	"os"
)

const usage = `netgraph compiles neural-network graphs into Keras code.

Usage:
  netgraph serve [-listen-addr addr] [-mcp]   serve the editor API (and MCP on stdio)
  netgraph mcp                                serve MCP tools on stdio
  netgraph compile [flags] <file|->           compile one graph document
  netgraph install [flags]                    write settings and install helper tools
  netgraph version                            print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		runServe(args)
	case "mcp":
		runMCP(args)
	case "compile":
		runCompile(args)
	case "install":
		runInstall(args)
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}
