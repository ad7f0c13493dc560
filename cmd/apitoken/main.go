// Command apitoken mints an API token signed with the server's key.
//
// Usage:
//
//	apitoken -operator alice [-- server config flags such as -data-path]
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/seedhypermedia/wxr-importer/internal/auth"
	"github.com/seedhypermedia/wxr-importer/internal/config"
)

func main() {
	fs := flag.NewFlagSet("apitoken", flag.ExitOnError)
	operator := fs.String("operator", "", "Name recorded in the token and in request logs")
	_ = fs.Parse(os.Args[1:])

	if *operator == "" {
		fmt.Fprintln(os.Stderr, "apitoken: -operator is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}

	key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(hex.EncodeToString(key), cfg.Auth.TokenDuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}

	token, err := tokens.GenerateAPIToken(*operator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "valid for %s\n", tokens.TokenDuration())
}
