package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/enum"
)

// DefaultTTL is the access token lifetime.
const DefaultTTL = 15 * time.Minute

// Claims identify a partner user and the locations they operate. Tokens are
// issued by the portal's sign-in service; this API only validates them.
type Claims struct {
	UserID      uuid.UUID   `json:"user_id"`
	LocationIDs []uuid.UUID `json:"location_ids"`
	PartnerType string      `json:"partner_type"`
	Role        string      `json:"role"`
	jwt.RegisteredClaims
}

// CanAccessLocation reports whether the holder may act on lid.
func (c *Claims) CanAccessLocation(lid uuid.UUID) bool {
	if c.Role == enum.RoleAdmin {
		return true
	}
	return slices.Contains(c.LocationIDs, lid)
}

// CanAccessPartnerType reports whether the holder may use flows owned by
// partnerType. Admins reach every flow.
func (c *Claims) CanAccessPartnerType(partnerType string) bool {
	return c.Role == enum.RoleAdmin || c.PartnerType == partnerType
}

func GenerateToken(secret string, userID uuid.UUID, locationIDs []uuid.UUID, partnerType, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	claims := Claims{
		UserID:      userID,
		LocationIDs: locationIDs,
		PartnerType: partnerType,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
