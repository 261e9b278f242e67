package main

import (
	"CloudVault/config"
	"CloudVault/utils"
	"flag"
	"fmt"
	"log"
	"time"
)

// token prints an API bearer token signed with the configured JWT secret.
func main() {
	operator := flag.String("operator", "admin", "operator name stored in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	token, err := utils.GenerateToken(cfg.JWTSecret, *operator, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
