package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/forgo/saga/presence/pkg/jwt"
)

func main() {
	privateKeyPath := flag.String("key", "./keys/private.pem", "Path to JWT private key")
	accountID := flag.String("account", "account:admin", "Account record id for the token subject")
	displayName := flag.String("name", "Admin", "Display name claim")
	role := flag.String("role", "admin", "Role claim (admin, moderator, user)")
	issuer := flag.String("issuer", "saga.forgo.software", "JWT issuer")
	expMins := flag.Int("exp", 60*24*7, "Token expiration in minutes (default: 7 days)")
	generate := flag.Bool("generate", false, "Write a new key pair to -key and -pub before signing")
	publicKeyPath := flag.String("pub", "./keys/public.pem", "Path to write the public key when -generate is set")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	if *generate {
		if err := jwt.GenerateKeyPair(*privateKeyPath, *publicKeyPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating key pair: %v\n", err)
			os.Exit(1)
		}
	}

	jwtService, err := jwt.NewService(jwt.Config{
		PrivateKeyPath: *privateKeyPath,
		Issuer:         *issuer,
		ExpirationMins: *expMins,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating JWT service: %v\n", err)
		fmt.Fprintf(os.Stderr, "\nGenerate keys with: admin-token -generate\n")
		os.Exit(1)
	}

	token, err := jwtService.Sign(jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{Subject: *accountID},
		DisplayName:      *displayName,
		Role:             *role,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		output := map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   *expMins * 60,
			"account_id":   *accountID,
			"role":         *role,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(output)
		return
	}

	expTime := time.Now().Add(time.Duration(*expMins) * time.Minute)
	fmt.Println("Presence Token Generated")
	fmt.Println("========================")
	fmt.Printf("Account:  %s\n", *accountID)
	fmt.Printf("Role:     %s\n", *role)
	fmt.Printf("Expires:  %s\n", expTime.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Layer administration also requires the account record to hold the")
	fmt.Println("admin role in the store; the token role alone is not trusted.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  websocat 'ws://localhost:8080/v1/socket?access_token=<token>'")
}
