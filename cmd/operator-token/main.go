// Command operator-token prints a signed token for the detection run endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"signal_backend/internal/config"
	jwtmw "signal_backend/internal/platform/jwt"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	subject := flag.String("subject", "", "operator name stored in the sub claim")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to auth.token_ttl")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fail(err)
	}
	if cfg.Auth.JWTSecret == "" {
		fail(fmt.Errorf("JWT_SECRET or auth.jwt_secret must be set"))
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := issue(cfg.Auth.JWTSecret, *subject, lifetime)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func issue(secret, subject string, ttl time.Duration) (string, error) {
	return jwtmw.NewGenerator(secret, ttl).GenerateToken(subject)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "operator-token:", err)
	os.Exit(1)
}
