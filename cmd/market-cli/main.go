package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultEndpoint = "http://127.0.0.1:8090"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globals are the flags accepted before the subcommand.
type globals struct {
	endpoint string
	token    string
}

func run(args []string, stdout, stderr io.Writer) int {
	g := globals{endpoint: envOr("MARKETD_URL", defaultEndpoint), token: os.Getenv("MARKETD_TOKEN")}
	fs := flag.NewFlagSet("market-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.endpoint, "url", g.endpoint, "marketd base URL (env MARKETD_URL)")
	fs.StringVar(&g.token, "token", g.token, "bearer token for mutating commands (env MARKETD_TOKEN)")
	fs.Usage = func() { fmt.Fprintln(stderr, usage()) }
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	c := &client{base: strings.TrimRight(g.endpoint, "/"), token: g.token}
	if err := cmd.run(c, rest[1:], stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func usage() string {
	var b strings.Builder
	b.WriteString("Usage: market-cli [--url URL] [--token JWT] <command> [flags]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "  %-15s %s\n", name, commands[name].summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
