// Command devtoken mints an access token signed with JWT_SECRET so the API
// can be exercised locally without an identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/swiftbus/booking-backend/pkg/jwt"
)

func main() {
	var (
		userID = flag.String("user", "", "user id (random when empty)")
		email  = flag.String("email", "rider@swiftbus.local", "email claim")
		roles  = flag.String("roles", "customer", "comma separated roles, e.g. customer,admin")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "swiftbus"
	}

	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			log.Fatalf("invalid -user: %v", err)
		}
		id = parsed
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, issuer, *ttl).GenerateAccessToken(id, *email, roleList)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s roles=%s expires_in=%s\n", id, strings.Join(roleList, ","), *ttl)
	fmt.Println(token)
}
