package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestKeyDeriver(t *testing.T) {
	if _, err := NewKeyDeriver(nil); err != ErrEmptyPepper {
		t.Fatalf("NewKeyDeriver(nil) error = %v, want ErrEmptyPepper", err)
	}

	d, err := NewKeyDeriver([]byte(strings.Repeat("p", 100)))
	if err != nil {
		t.Fatalf("NewKeyDeriver() error = %v", err)
	}

	a := d.Derive("sk-live-abc")
	if !strings.HasPrefix(a, CallerKeyPrefix) {
		t.Errorf("Derive() = %q, want prefix %q", a, CallerKeyPrefix)
	}
	if len(a) != len(CallerKeyPrefix)+32 {
		t.Errorf("len(Derive()) = %d, want %d", len(a), len(CallerKeyPrefix)+32)
	}
	if strings.Contains(a, "sk-live-abc") {
		t.Error("Derive() leaks the raw key")
	}
	if b := d.Derive("sk-live-abc"); b != a {
		t.Errorf("Derive() not deterministic: %q != %q", a, b)
	}
	if b := d.Derive("sk-live-abd"); b == a {
		t.Error("different keys derived the same caller key")
	}

	other, _ := NewKeyDeriver([]byte("another-pepper"))
	if other.Derive("sk-live-abc") == a {
		t.Error("different peppers derived the same caller key")
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleViewer, true},
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleAdmin, false},
		{Role("guest"), RoleViewer, false},
	}
	for _, tt := range tests {
		if got := tt.role.HasPermission(tt.required); got != tt.want {
			t.Errorf("%s.HasPermission(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}

	roles, err := ParseRoles(" Admin, viewer ,")
	if err != nil || len(roles) != 2 || roles[0] != RoleAdmin {
		t.Errorf("ParseRoles() = %v, %v", roles, err)
	}
	if _, err := ParseRoles("root"); err == nil {
		t.Error("ParseRoles(root) error = nil, want error")
	}

	if !Permits([]string{"viewer"}) {
		t.Error("Permits() with no requirement should allow")
	}
	if Permits([]string{"viewer"}, RoleAdmin) {
		t.Error("viewer must not satisfy admin")
	}
	if !Permits([]string{"guest", "admin"}, RoleViewer) {
		t.Error("admin must satisfy viewer")
	}
}

func TestTokenIssuer(t *testing.T) {
	if _, err := NewTokenIssuer(nil, "gw", time.Minute); err != ErrEmptySecret {
		t.Fatalf("NewTokenIssuer(nil) error = %v, want ErrEmptySecret", err)
	}

	issuer, err := NewTokenIssuer([]byte("test-secret-key-for-testing"), "tool-gateway", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		token, exp, err := issuer.Issue("ops", RoleViewer)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if !exp.After(time.Now()) {
			t.Error("Issue() expiry is in the past")
		}
		claims, err := issuer.Validate(token)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if claims.Subject != "ops" || len(claims.Roles) != 1 || claims.Roles[0] != "viewer" {
			t.Errorf("claims = %+v", claims)
		}
	})

	t.Run("rejects invalid roles", func(t *testing.T) {
		if _, _, err := issuer.Issue("ops"); err == nil {
			t.Error("Issue() without roles error = nil")
		}
		if _, _, err := issuer.Issue("ops", Role("root")); err == nil {
			t.Error("Issue(root) error = nil")
		}
	})

	t.Run("expired", func(t *testing.T) {
		past, _ := NewTokenIssuer([]byte("test-secret-key-for-testing"), "tool-gateway", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := past.Issue("ops", RoleAdmin)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := issuer.Validate(token); err != ErrInvalidToken {
			t.Errorf("Validate(expired) error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewTokenIssuer([]byte("different-secret"), "tool-gateway", time.Minute)
		token, _, _ := other.Issue("ops", RoleAdmin)
		if _, err := issuer.Validate(token); err != ErrInvalidToken {
			t.Errorf("Validate(wrong secret) error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewTokenIssuer([]byte("test-secret-key-for-testing"), "someone-else", time.Minute)
		token, _, _ := other.Issue("ops", RoleAdmin)
		if _, err := issuer.Validate(token); err != ErrInvalidToken {
			t.Errorf("Validate(wrong issuer) error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{Roles: []string{"admin"}})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		if _, err := issuer.Validate(signed); err != ErrInvalidToken {
			t.Errorf("Validate(none) error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := issuer.Validate("not.a.token"); err != ErrInvalidToken {
			t.Errorf("Validate(garbage) error = %v, want ErrInvalidToken", err)
		}
	})
}
