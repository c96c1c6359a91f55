// Command devtoken mints access tokens for local testing.
package main

import (
	"flag"
	"fmt"
	"os"

	"pigeon-auction/internal/auth"
	"pigeon-auction/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	bidder := flag.String("bidder", "", "bidder id to put in the token subject")
	role := flag.String("role", auth.RoleUser, "token role: user or admin")
	verified := flag.Bool("phone-verified", true, "mark the bidder's phone as verified")
	flag.Parse()

	if *bidder == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -bidder is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}

	token, err := tokens.Issue(*bidder, *verified, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
