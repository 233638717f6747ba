package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenPairRoundTrip(t *testing.T) {
	pair, err := NewTokenPair("secret", "issuer", RoleStudent, "s.jansen@student.fontys.nl", 15*time.Minute, 20*time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}

	claims, err := ParseToken("secret", pair.AccessToken)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.Role != RoleStudent || claims.Subject != "s.jansen@student.fontys.nl" {
		t.Fatalf("unexpected claims: role=%s sub=%s", claims.Role, claims.Subject)
	}

	expiry := claims.ExpiresAt.Time
	wantExpiry := time.Now().Add(15 * time.Minute)
	if expiry.Before(wantExpiry.Add(-time.Minute)) || expiry.After(wantExpiry.Add(time.Minute)) {
		t.Fatalf("access expiry %s not near now+15m", expiry)
	}

	refreshClaims, err := ParseToken("secret", pair.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh error: %v", err)
	}
	if !refreshClaims.ExpiresAt.After(expiry) {
		t.Fatalf("refresh token should outlive access token")
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	pair, err := NewTokenPair("secret", "issuer", RoleTeacher, "teacher@fontys.nl", time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	if _, err := ParseToken("other-secret", pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, err := NewToken("secret", "issuer", RoleStudent, "s@x", -time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	if _, err := ParseToken("secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseTokenTamperedRole(t *testing.T) {
	token, err := NewToken("secret", "issuer", RoleStudent, "s@x", time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}

	// Re-sign the claims with a forged role under a different key, then
	// splice the original signature back on. Both forms must be rejected.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "s@x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("attacker"))
	if err != nil {
		t.Fatalf("forge error: %v", err)
	}
	if _, err := ParseToken("secret", forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	originalParts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	spliced := forgedParts[0] + "." + forgedParts[1] + "." + originalParts[2]
	if _, err := ParseToken("secret", spliced); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for spliced payload, got %v", err)
	}
}

func TestParseTokenUnsignedAlgRejected(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleTeacher}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	if _, err := ParseToken("secret", unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestRefreshCarriesClaimsForward(t *testing.T) {
	pair, err := NewTokenPair("secret", "issuer", RoleStudent, "s.jansen@student.fontys.nl", time.Minute, 20*time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	oldClaims, err := ParseToken("secret", pair.AccessToken)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	newPair, refreshed, err := Refresh("secret", "issuer", pair.RefreshToken, 15*time.Minute, 20*time.Minute)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if refreshed.Role != RoleStudent || refreshed.Subject != "s.jansen@student.fontys.nl" {
		t.Fatalf("refresh changed identity: role=%s sub=%s", refreshed.Role, refreshed.Subject)
	}

	newClaims, err := ParseToken("secret", newPair.AccessToken)
	if err != nil {
		t.Fatalf("parse new access error: %v", err)
	}
	if newClaims.Role != oldClaims.Role || newClaims.Subject != oldClaims.Subject {
		t.Fatalf("new pair does not carry claims forward")
	}
	if !newClaims.ExpiresAt.After(oldClaims.IssuedAt.Time) {
		t.Fatalf("new expiry must be later than previous issue time")
	}
}

func TestRefreshRejectsForeignSecret(t *testing.T) {
	pair, err := NewTokenPair("other-secret", "issuer", RoleStudent, "s@x", time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	if _, _, err := Refresh("secret", "issuer", pair.RefreshToken, time.Minute, time.Minute); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRoleFromAffiliations(t *testing.T) {
	cases := []struct {
		affiliations []string
		want         string
	}{
		{[]string{"student"}, RoleStudent},
		{[]string{"teacher"}, RoleTeacher},
		{[]string{"student", "teacher"}, RoleTeacher},
		{[]string{"staff"}, RoleNone},
		{nil, RoleNone},
	}
	for _, tc := range cases {
		if got := RoleFromAffiliations(tc.affiliations); got != tc.want {
			t.Fatalf("affiliations %v: expected %s, got %s", tc.affiliations, tc.want, got)
		}
	}
}
