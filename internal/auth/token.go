// internal/auth/token.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey sign and verify seat tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpireSec is how long a seat token stays valid (0 => never). Seat
	// tokens only matter for the lifetime of a session, so the default is
	// generous but finite.
	tokenExpireSec int
)

func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	switch duration {
	case "never", "0":
		tokenExpireSec = 0
	case "":
		tokenExpireSec = int((24 * time.Hour).Seconds())
	default:
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		tokenExpireSec = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime. Tokens do not survive a
// server restart, which is acceptable: the sessions they belong to do not
// either.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath reads ed25519 keys from file so tokens survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// CreateSeatToken mints a reconnect token binding one seat in one game. A
// guest presenting it on rejoin reclaims that exact seat and nothing else.
func CreateSeatToken(gameID uuid.UUID, playerID int) (string, error) {
	claims := jwt.MapClaims{
		"gid":  gameID.String(),
		"seat": playerID,
	}
	if tokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(tokenExpireSec) * time.Second).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySeatToken validates a reconnect token and returns the game and seat
// it is bound to.
func VerifySeatToken(tokenString string) (uuid.UUID, int, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, 0, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("invalid jwt claims")
	}
	gidStr, ok := claims["gid"].(string)
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("missing gid in jwt")
	}
	gameID, err := uuid.Parse(gidStr)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("malformed gid in jwt: %w", err)
	}
	seatF, ok := claims["seat"].(float64)
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("missing seat in jwt")
	}
	return gameID, int(seatF), nil
}
