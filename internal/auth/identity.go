package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key the auth middleware stores the
// caller under.
const IdentityKey = "identity"

var ErrNoIdentity = errors.New("no authenticated caller")

// Identity is who a request acts for. OwnerID becomes the owner of any
// task the request starts.
type Identity struct {
	OwnerID int
}

func SetIdentity(c *gin.Context, id Identity) {
	c.Set(IdentityKey, id)
}

func IdentityFrom(c *gin.Context) (Identity, error) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	id, ok := v.(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
