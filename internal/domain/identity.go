package domain

import "fmt"

type IdentityKind string

const (
	IdentitySession IdentityKind = "session"
	IdentityUser    IdentityKind = "user"
)

// ShopperIdentity is either an anonymous session token or an authenticated user id.
// Carts resolved under different identities are never unified.
type ShopperIdentity struct {
	Kind  IdentityKind `json:"kind"`
	Value string       `json:"value"`
}

func SessionIdentity(token string) ShopperIdentity {
	return ShopperIdentity{Kind: IdentitySession, Value: token}
}

func UserIdentity(userID string) ShopperIdentity {
	return ShopperIdentity{Kind: IdentityUser, Value: userID}
}

func (i ShopperIdentity) Validate() error {
	if i.Kind != IdentitySession && i.Kind != IdentityUser {
		return fmt.Errorf("%w: unknown identity kind %q", ErrUnauthenticated, i.Kind)
	}
	if i.Value == "" {
		return fmt.Errorf("%w: empty %s identity", ErrUnauthenticated, i.Kind)
	}
	return nil
}

// String representation (for logging and cache keys)
func (i ShopperIdentity) String() string {
	return string(i.Kind) + ":" + i.Value
}
