package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jgrimard/TPLink-APIClient/cmd"
	"github.com/jgrimard/TPLink-APIClient/internal/brand"
	"github.com/jgrimard/TPLink-APIClient/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command, args := os.Args[1], os.Args[2:]
	if err := run(command, args); err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "led":
		flags := flag.NewFlagSet("led", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Usage = subUsage(flags, "led", "[on|off|toggle]")
		flags.Parse(args)
		return cmd.RunLED(o, flags.Arg(0))

	case "clients":
		flags := flag.NewFlagSet("clients", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunClients(o)

	case "blocklist":
		flags := flag.NewFlagSet("blocklist", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunBlockList(o)

	case "candidates":
		flags := flag.NewFlagSet("candidates", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunCandidates(o)

	case "block", "unblock":
		flags := flag.NewFlagSet(command, flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Usage = subUsage(flags, command, "<mac>")
		flags.Parse(args)
		if flags.NArg() != 1 {
			flags.Usage()
			os.Exit(2)
		}
		if command == "block" {
			return cmd.RunBlock(o, flags.Arg(0))
		}
		return cmd.RunUnblock(o, flags.Arg(0))

	case "keyring-set":
		flags := flag.NewFlagSet("keyring-set", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunKeyringSet(o)

	case "keyring-delete":
		flags := flag.NewFlagSet("keyring-delete", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunKeyringDelete(o)

	case "config-init":
		flags := flag.NewFlagSet("config-init", flag.ExitOnError)
		path := flags.String("config", brand.DefaultConfigPath(), "Configuration file to write")
		host := flags.String("host", "192.168.0.1", "Router address")
		force := flags.Bool("force", false, "Overwrite an existing file")
		flags.Parse(args)
		return cmd.RunConfigInit(*path, *host, *force)

	case "config-set":
		flags := flag.NewFlagSet("config-set", flag.ExitOnError)
		path := flags.String("config", brand.DefaultConfigPath(), "Configuration file to edit")
		flags.Usage = subUsage(flags, "config-set", "<name> <value>")
		flags.Parse(args)
		if flags.NArg() != 2 {
			flags.Usage()
			os.Exit(2)
		}
		return cmd.RunConfigSet(*path, flags.Arg(0), flags.Arg(1))

	case "check":
		flags := flag.NewFlagSet("check", flag.ExitOnError)
		o := cmd.RegisterFlags(flags)
		flags.Parse(args)
		return cmd.RunCheck(o)

	case "version":
		cmd.RunVersion()
		return nil

	case "help", "-h", "--help":
		printUsage()
		return nil
	}

	printer.Fprintf(os.Stderr, "Unknown command: %s\n", command)
	printUsage()
	os.Exit(1)
	return nil
}

func subUsage(flags *flag.FlagSet, command, operands string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [options] %s\n", brand.BinaryName, command, operands)
		flags.PrintDefaults()
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s - %s

Usage: %s <command> [options]

Device commands (log in, act, log out):
  led [on|off|toggle]   Show or change the LED state
  clients               Print connected clients as JSON
  blocklist             List blocked devices
  candidates            List devices that can be blocked
  block <mac>           Block a device
  unblock <mac>         Unblock a device

Setup:
  keyring-set           Store the router password in the OS keyring
  keyring-delete        Remove the stored router password
  config-init           Write a starter config file
  config-set <k> <v>    Change one router setting in the config file
  check                 Validate configuration without contacting the router
  version               Print version information

Common options:
  -config, -c <file>    Configuration file (default %s)
  -host <addr>          Router address
  -evict                Take over if another admin is logged in
  -metrics <file>       Write Prometheus metrics to a textfile on exit
  -v                    Verbose logging
`, brand.Name, brand.Description, brand.BinaryName, brand.DefaultConfigPath())
}
