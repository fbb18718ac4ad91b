// Command jwt-mint prints an HS256 bearer token accepted by a server
// configured with the same server.auth.jwt_secret.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type options struct {
	secret     string
	secretFile string
	issuer     string
	audience   string
	subject    string
	roles      string
	rolesClaim string
	expires    time.Duration
}

func main() {
	opts := options{}
	subject := "user-1"
	if u, err := user.Current(); err == nil {
		subject = u.Username
	}

	pflag.StringVar(&opts.secret, "secret", os.Getenv("AUTOAPI_SERVER_AUTH_JWT_SECRET"), "HS256 signing secret")
	pflag.StringVar(&opts.secretFile, "secret-file", "", "Read the signing secret from a file")
	pflag.StringVar(&opts.issuer, "issuer", "", "iss claim (optional)")
	pflag.StringVar(&opts.audience, "audience", "", "aud claim, comma-separated (optional)")
	pflag.StringVar(&opts.subject, "subject", subject, "sub claim")
	pflag.StringVar(&opts.roles, "roles", "", "Roles, comma-separated")
	pflag.StringVar(&opts.rolesClaim, "roles-claim", "roles", "Claim that carries the roles")
	pflag.DurationVar(&opts.expires, "expires", time.Hour, "Token lifetime")
	pflag.Parse()

	token, err := mint(opts, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(opts options, now time.Time) (string, error) {
	secret := opts.secret
	if opts.secretFile != "" {
		data, err := os.ReadFile(opts.secretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	}
	if secret == "" {
		return "", errors.New("a signing secret is required (--secret or --secret-file)")
	}

	claims := jwt.MapClaims{
		"sub": opts.subject,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(opts.expires).Unix(),
	}
	if opts.issuer != "" {
		claims["iss"] = opts.issuer
	}
	if aud := splitList(opts.audience); len(aud) > 0 {
		claims["aud"] = aud
	}
	if roles := splitList(opts.roles); len(roles) > 0 {
		claims[opts.rolesClaim] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
