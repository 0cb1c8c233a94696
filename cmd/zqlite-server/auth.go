// Authentication for the zqlite TCP server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures server authentication.
type AuthConfig struct {
	// Enabled gates query execution behind a successful AUTH command.
	Enabled bool `yaml:"enabled"`

	// JWTSecret is the shared secret for HS256 JWT validation.
	JWTSecret string `yaml:"jwtSecret"`

	// Issuer is the expected "iss" claim, when set.
	Issuer string `yaml:"issuer"`

	// Audience is the expected "aud" claim, when set.
	Audience string `yaml:"audience"`

	// SubjectClaim is the claim naming the caller (default: "sub").
	SubjectClaim string `yaml:"subjectClaim"`
}

// ConnectionState tracks per-connection authentication state.
type ConnectionState struct {
	subject       string
	authenticated bool
	tokenExpiry   time.Time
}

// IsAuthenticated returns true if the connection has been authenticated
// and the token has not expired.
func (cs *ConnectionState) IsAuthenticated() bool {
	if !cs.authenticated {
		return false
	}
	if !cs.tokenExpiry.IsZero() && time.Now().After(cs.tokenExpiry) {
		return false
	}
	return true
}

// authResult represents the result of an authentication attempt.
type authResult struct {
	subject   string
	expiresAt time.Time
	err       error
}

// validateJWT validates a JWT token and extracts the subject claim.
func (s *Server) validateJWT(tokenString string) authResult {
	cfg := s.authConfig
	if cfg == nil {
		return authResult{err: errors.New("authentication not configured")}
	}

	subjectClaim := cfg.SubjectClaim
	if subjectClaim == "" {
		subjectClaim = "sub"
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if cfg.JWTSecret == "" {
			return nil, errors.New("no JWT secret configured")
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	if err != nil {
		return authResult{err: fmt.Errorf("invalid token: %w", err)}
	}
	if !token.Valid {
		return authResult{err: errors.New("invalid token")}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authResult{err: errors.New("invalid token claims")}
	}

	if cfg.Issuer != "" {
		issuer, _ := claims.GetIssuer()
		if issuer != cfg.Issuer {
			return authResult{err: fmt.Errorf("invalid issuer: expected %s, got %s", cfg.Issuer, issuer)}
		}
	}

	if cfg.Audience != "" {
		audiences, _ := claims.GetAudience()
		found := false
		for _, aud := range audiences {
			if aud == cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return authResult{err: fmt.Errorf("invalid audience: expected %s", cfg.Audience)}
		}
	}

	subject, _ := claims[subjectClaim].(string)
	if subject == "" {
		return authResult{err: fmt.Errorf("token missing %s claim", subjectClaim)}
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return authResult{subject: subject, expiresAt: expiresAt}
}

// parseAuthCommand parses an AUTH command and returns the auth type and token.
// Supported formats:
//   - AUTH JWT <token>
func parseAuthCommand(line string) (authType, token string, err error) {
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(strings.ToUpper(line), "AUTH ") {
		return "", "", errors.New("not an AUTH command")
	}

	parts := strings.Fields(line)
	if len(parts) < 3 {
		return "", "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(parts[1])
	token = parts[2]

	switch authType {
	case "JWT":
		return authType, token, nil
	default:
		return "", "", fmt.Errorf("unsupported auth type: %s", authType)
	}
}

// handleAuth processes an AUTH command and returns the response.
func (s *Server) handleAuth(line string, state *ConnectionState) Response {
	_, token, err := parseAuthCommand(line)
	if err != nil {
		return errorResponse("auth", err)
	}

	result := s.validateJWT(token)
	if result.err != nil {
		return errorResponse("auth", result.err)
	}

	state.subject = result.subject
	state.authenticated = true
	state.tokenExpiry = result.expiresAt

	ar := AuthResponse{
		Authenticated: true,
		Subject:       result.subject,
	}
	if !result.expiresAt.IsZero() {
		ar.ExpiresIn = int(time.Until(result.expiresAt).Seconds())
	}

	data, _ := json.Marshal(ar)
	return Response{Success: true, Type: "auth", Result: data}
}
