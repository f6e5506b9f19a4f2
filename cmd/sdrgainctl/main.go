package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dougsko/sdrgain/pkg/client"
)

var (
	socketPath = flag.String("socket", "/tmp/sdrgain.sock", "Unix socket path")
	command    = flag.String("cmd", "", "Command to send (e.g., 'STATUS', 'FREQUENCY:433920')")
)

func main() {
	flag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	c := client.NewSocketClient(*socketPath)
	response, err := c.SendCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", response.String())
	if !response.Success {
		os.Exit(2)
	}
}

func showHelp() {
	fmt.Println("sdrgainctl - sdrgain daemon control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -socket <path>    Unix socket path (default: /tmp/sdrgain.sock)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                    Engine, backend and session state")
	fmt.Println("  POWER                     Last measured power in dBFS")
	fmt.Println("  FREQUENCY                 Requested frequency in kHz")
	fmt.Println("  FREQUENCY:<khz>           Retune (50000-1500000 kHz)")
	fmt.Println("  PRESETS                   List stored presets")
	fmt.Println("  PRESET:<name>             Retune to a stored preset")
	fmt.Println("  PING                      Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s FREQUENCY:433920\n", os.Args[0])
	fmt.Printf("  echo 'POWER' | nc -U /tmp/sdrgain.sock\n")
}
