package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/config"
	authsvc "github.com/ivankudzin/tgapp/moderator/internal/services/auth"
)

// admintoken prints a bearer token for the admin API.
func main() {
	subject := flag.String("subject", "", "operator id, numeric platform user id when possible")
	role := flag.String("role", authsvc.RoleModerator, "ADMIN or MODERATOR")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	token, expiresAt, err := authsvc.NewJWTManager(cfg.Auth.JWTSecret, *ttl).GenerateAccessToken(*subject, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}
