package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/john/memchat/internal/config"
	"github.com/john/memchat/internal/memory"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: find-process <name> [name] ...")
		fmt.Println("\nExample:")
		fmt.Println("  find-process Wow.exe WowClassic.exe")
		os.Exit(1)
	}

	names := os.Args[1:]
	fmt.Printf("Looking up %d process name(s)...\n\n", len(names))

	var found []memory.Process
	failed := make(map[string]string)

	for _, name := range names {
		procs, err := memory.FindProcesses(name)
		switch {
		case err != nil:
			failed[name] = err.Error()
		case len(procs) == 0:
			failed[name] = memory.ErrProcessNotFound.Error()
		default:
			found = append(found, procs...)
		}
	}

	if len(found) > 0 {
		fmt.Println("✓ Running:")
		fmt.Println("---")
		for _, p := range found {
			fmt.Printf("%s: %d\n", p.Name, p.PID)
		}
		fmt.Println()
	}

	if len(failed) > 0 {
		fmt.Println("✗ Not found:")
		fmt.Println("---")
		for name, err := range failed {
			fmt.Printf("%s: %s\n", name, err)
		}
		fmt.Println()
	}

	if len(found) == 1 {
		snippet, err := yaml.Marshal(map[string]config.ProcessConfig{
			"process": {Name: found[0].Name, PID: found[0].PID},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal snippet: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Add this to your config.yaml:")
		fmt.Println("---")
		fmt.Print(string(snippet))
	} else if len(found) > 1 {
		fmt.Println("Several clients are running; pass --pid to pick one.")
	}

	if len(found) == 0 {
		os.Exit(1)
	}
}
