// Command origin runs the private translation service: phrase-store
// lookup, optional LM fallback on a pro-tier miss, and the request
// validation middleware guarding both. It only accepts traffic bearing
// the shield token the edge gateway injects.
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/origin.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("origin", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
