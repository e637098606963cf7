// Command token issues operator JWTs for the screening API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	jwtmw "compliance_screener/internal/platform/jwt"
)

func main() {
	subject := flag.String("sub", "", "Token subject (operator or job name).")
	scopes := flag.String("scope", jwtmw.ScopeScreen, "Comma-separated scopes (screen, admin).")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime.")
	flag.Parse()

	// .envを読み込む
	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	secret := os.Getenv(jwtmw.EnvKeyJWTSecret)
	if secret == "" {
		fmt.Fprintln(os.Stderr, jwtmw.EnvKeyJWTSecret+" is not set")
		os.Exit(1)
	}

	var list []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}

	tok, err := jwtmw.NewGenerator(secret, *ttl).GenerateToken(*subject, list...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
