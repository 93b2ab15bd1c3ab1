// Command miunlock races the daily bootloader-unlock quota on Xiaomi's
// community service. It synchronizes against NTP, waits out the countdown to
// midnight Beijing time and fires four staggered workers at the boundary.
package main

import (
	"fmt"
	"os"
)

const version = "1.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("miunlock", version)
		return
	}

	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "status":
		os.Exit(cmdStatus(os.Args[2:]))
	case "probe":
		os.Exit(cmdProbe(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "miunlock: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'miunlock --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`miunlock - race the daily bootloader-unlock quota

The service grants a fixed number of unlock permissions per day; the quota
resets at midnight Beijing time. miunlock anchors a clock from NTP, waits out
the countdown and fires four staggered workers over two credentials right at
the boundary.

Usage:
  miunlock <command> [flags]

Commands:
  run       Wait for the next boundary and race the quota
  status    Check unlock eligibility with the stored credentials
  probe     Measure network latency and suggest firing offsets
  version   Print the version

Flags:
  run:     --config <path>   config file (default miunlock.yaml)
           --dry-run         full wait sequence without sending any request
  status:  --config <path>
  probe:   --servers <n>     how many nearby servers to ping (default 8)
           -v                log per-server ping diagnostics

Files:
  miunlock.yaml   configuration; built-in defaults apply when absent
  tokens.json     credentials: {"firefox": "<token>", "chrome": "<token>"}
  token.txt       legacy two-line credentials (fallback)

Exit codes:
  0  approved (run) / eligible or already approved (status)
  1  error
  2  finished without approval (run) / not eligible (status)
`)
}

func errf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "miunlock: "+format+"\n", args...)
}
