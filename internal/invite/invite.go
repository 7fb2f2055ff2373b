// Package invite issues and verifies signed group invitation tokens.
package invite

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidInvite = errors.New("invalid or expired invite")

const audience = "giftlist-invite"

// Invite is what an invite token carries.
type Invite struct {
	GroupID    string `json:"groupId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
}

type claims struct {
	Invite
	jwt.RegisteredClaims
}

// Codec signs and verifies invite tokens with an HMAC secret.
type Codec struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewCodec(secret string, ttl time.Duration, baseURL string) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl, baseURL: baseURL, now: time.Now}
}

// Issue returns a signed token for inv and its expiry time.
func (c *Codec) Issue(inv Invite) (string, time.Time, error) {
	now := c.now()
	expires := now.Add(c.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Invite: inv,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invite: %w", err)
	}
	return signed, expires, nil
}

// Decode verifies token and returns the invite it carries. Every failure,
// including expiry, is reported as ErrInvalidInvite.
func (c *Codec) Decode(token string) (*Invite, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidInvite
		}
		return c.secret, nil
	}, jwt.WithAudience(audience), jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || cl.GroupID == "" || cl.SenderID == "" {
		return nil, ErrInvalidInvite
	}
	inv := cl.Invite
	return &inv, nil
}

// Link builds the URL a recipient opens to accept the invite.
func (c *Codec) Link(token string) string {
	return c.baseURL + "?token=" + url.QueryEscape(token)
}
