// Command token mints a bearer token for the admin and clinic routes in
// local and staging environments.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/smilequote/internal/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	subject := flag.String("sub", "ops@smilequote.local", "token subject")
	roles := flag.String("roles", auth.RoleAdmin, "comma separated roles")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		log.Fatal("AUTH_JWT_SECRET is not set")
	}
	v, err := auth.NewVerifier(secret, os.Getenv("AUTH_ISSUER"), os.Getenv("AUTH_AUDIENCE"))
	if err != nil {
		log.Fatalf("Failed to build verifier: %v", err)
	}

	var list []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			list = append(list, r)
		}
	}
	token, err := v.Sign(*subject, list, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
