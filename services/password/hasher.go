package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordHashingFailed = errors.New("failed to hash password")

// Hasher produces and checks one hash format.
type Hasher interface {
	Hash(plain string) (string, error)
	Check(plain, hash string) bool
	// Recognizes reports whether hash is in this hasher's format.
	Recognizes(hash string) bool
	// NeedsRehash reports whether hash was produced with other parameters
	// than the current ones. Unrecognised hashes always need a rehash.
	NeedsRehash(hash string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrPasswordHashingFailed, err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Check(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (h *BcryptHasher) Recognizes(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}

func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}
