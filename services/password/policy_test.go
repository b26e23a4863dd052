package password

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/testutils"
	"github.com/tech-arch1tect/gatekeep/validation"
	"golang.org/x/crypto/bcrypt"
)

func newTestPolicy(t *testing.T, breach BreachChecker) (*Policy, *config.AuthConfig) {
	t.Helper()

	cfg := testutils.GetTestConfig().Auth
	hasher, err := NewHasher(&cfg)
	require.NoError(t, err)
	return NewPolicy(&cfg, hasher, breach, nil), &cfg
}

func TestPolicy_Validate(t *testing.T) {
	policy, _ := newTestPolicy(t, nil)

	tests := []struct {
		name     string
		password string
		contains string
	}{
		{"valid", testutils.TestPasswords.Valid, ""},
		{"with special", testutils.TestPasswords.WithSpecial, ""},
		{"too short", testutils.TestPasswords.TooShort, "at least 8 characters"},
		{"no upper", testutils.TestPasswords.NoUpper, "one uppercase letter"},
		{"no lower", testutils.TestPasswords.NoLower, "one lowercase letter"},
		{"no number", testutils.TestPasswords.NoNumber, "one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password)
			if tt.contains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, validation.ErrWeakPassword))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("special character required", func(t *testing.T) {
		policy, cfg := newTestPolicy(t, nil)
		cfg.RequireSpecial = true

		assert.Error(t, policy.Validate(testutils.TestPasswords.Valid))
		assert.NoError(t, policy.Validate(testutils.TestPasswords.WithSpecial))
	})
}

func TestPolicy_Secure(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes a strong password", func(t *testing.T) {
		policy, _ := newTestPolicy(t, nil)

		hash, err := policy.Secure(ctx, testutils.TestPasswords.Valid)
		require.NoError(t, err)
		assert.NotEqual(t, testutils.TestPasswords.Valid, hash)
		assert.True(t, policy.Check(testutils.TestPasswords.Valid, hash))
		assert.False(t, policy.Check(testutils.TestPasswords.Other, hash))
	})

	t.Run("returns a current hash unchanged", func(t *testing.T) {
		policy, _ := newTestPolicy(t, nil)

		hash, err := policy.Secure(ctx, testutils.TestPasswords.Valid)
		require.NoError(t, err)

		again, err := policy.Secure(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, hash, again)
	})

	t.Run("stale hash is treated as a plain value", func(t *testing.T) {
		policy, cfg := newTestPolicy(t, nil)
		cfg.RequireUpper, cfg.RequireLower, cfg.RequireNumber = false, false, false
		stale, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost+1)
		require.NoError(t, err)

		hash, err := policy.Secure(ctx, string(stale))
		require.NoError(t, err)
		assert.NotEqual(t, string(stale), hash)
		assert.True(t, policy.Check(string(stale), hash))
	})

	t.Run("weak password rejected", func(t *testing.T) {
		policy, _ := newTestPolicy(t, nil)

		_, err := policy.Secure(ctx, testutils.TestPasswords.TooShort)
		assert.True(t, errors.Is(err, validation.ErrWeakPassword))
	})

	t.Run("breached password rejected", func(t *testing.T) {
		breach := &testutils.MockBreachChecker{}
		breach.On("Count", mock.Anything, testutils.TestPasswords.Valid).Return(3, nil)
		policy, cfg := newTestPolicy(t, breach)
		cfg.UncompromisedCheck = true

		_, err := policy.Secure(ctx, testutils.TestPasswords.Valid)

		require.Error(t, err)
		assert.True(t, errors.Is(err, validation.ErrWeakPassword))
		verr, ok := validation.As(err)
		require.True(t, ok)
		assert.Equal(t, MessageCompromised, verr.Message)
		breach.AssertExpectations(t)
	})

	t.Run("threshold is the largest count still accepted", func(t *testing.T) {
		cases := []struct {
			threshold int
			count     int
			rejected  bool
		}{
			{threshold: 1, count: 0},
			{threshold: 1, count: 1},
			{threshold: 1, count: 2, rejected: true},
			{threshold: 2, count: 2},
			{threshold: 0, count: 0},
			{threshold: 0, count: 1, rejected: true},
		}

		for _, tc := range cases {
			breach := &testutils.MockBreachChecker{}
			breach.On("Count", mock.Anything, testutils.TestPasswords.Valid).Return(tc.count, nil)
			policy, cfg := newTestPolicy(t, breach)
			cfg.UncompromisedCheck = true
			cfg.UncompromisedThreshold = tc.threshold

			_, err := policy.Secure(ctx, testutils.TestPasswords.Valid)
			if tc.rejected {
				assert.ErrorIs(t, err, validation.ErrWeakPassword, "threshold=%d count=%d", tc.threshold, tc.count)
			} else {
				assert.NoError(t, err, "threshold=%d count=%d", tc.threshold, tc.count)
			}
		}
	})

	t.Run("count below threshold passes", func(t *testing.T) {
		breach := &testutils.MockBreachChecker{}
		breach.On("Count", mock.Anything, mock.Anything).Return(2, nil)
		policy, cfg := newTestPolicy(t, breach)
		cfg.UncompromisedCheck = true
		cfg.UncompromisedThreshold = 5

		_, err := policy.Secure(ctx, testutils.TestPasswords.Valid)
		assert.NoError(t, err)
	})

	t.Run("breach api failure fails open", func(t *testing.T) {
		breach := &testutils.MockBreachChecker{}
		breach.On("Count", mock.Anything, mock.Anything).Return(0, errors.New("timeout"))
		policy, cfg := newTestPolicy(t, breach)
		cfg.UncompromisedCheck = true

		_, err := policy.Secure(ctx, testutils.TestPasswords.Valid)
		assert.NoError(t, err)
	})

	t.Run("overlong bcrypt input is a weak password", func(t *testing.T) {
		policy, _ := newTestPolicy(t, nil)

		_, err := policy.Secure(ctx, "Aa1"+strings.Repeat("x", 80))
		assert.True(t, errors.Is(err, validation.ErrWeakPassword))
	})
}

func TestPolicy_Rehash(t *testing.T) {
	policy, cfg := newTestPolicy(t, nil)

	old, err := bcrypt.GenerateFromPassword([]byte(testutils.TestPasswords.Valid), cfg.BcryptCost+1)
	require.NoError(t, err)
	assert.True(t, policy.NeedsRehash(string(old)))

	fresh, err := policy.Rehash(testutils.TestPasswords.Valid)
	require.NoError(t, err)
	assert.False(t, policy.NeedsRehash(fresh))
	assert.True(t, policy.Check(testutils.TestPasswords.Valid, fresh))

	policy.CheckDummy("anything")
}

func TestHashers(t *testing.T) {
	argon, err := NewArgon2Hasher(Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1})
	require.NoError(t, err)

	hashers := map[string]Hasher{
		"bcrypt":   NewBcryptHasher(bcrypt.MinCost),
		"argon2id": argon,
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("Password123")
			require.NoError(t, err)

			assert.True(t, h.Recognizes(hash))
			assert.False(t, h.NeedsRehash(hash))
			assert.True(t, h.Check("Password123", hash))
			assert.False(t, h.Check("Password124", hash))
			assert.False(t, h.Recognizes("Password123"))
			assert.True(t, h.NeedsRehash("Password123"))
		})
	}

	t.Run("argon2 parameter change needs rehash", func(t *testing.T) {
		stronger, err := NewArgon2Hasher(Argon2Params{Memory: 16 * 1024, Time: 1, Parallelism: 1})
		require.NoError(t, err)

		hash, err := argon.Hash("Password123")
		require.NoError(t, err)

		assert.True(t, stronger.NeedsRehash(hash))
		assert.True(t, stronger.Check("Password123", hash))
	})

	t.Run("argon2 rejects weak parameters", func(t *testing.T) {
		_, err := NewArgon2Hasher(Argon2Params{Memory: 1024, Time: 1, Parallelism: 1})
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewHasher(&config.AuthConfig{HashDriver: "md5"})
		assert.Error(t, err)
	})
}

func TestPwnedChecker(t *testing.T) {
	// sha1("Password123") = B2E98AD6F6EB8508DD6A14CFA704BAD7F05F6FB1
	const suffix = "AD6F6EB8508DD6A14CFA704BAD7F05F6FB1"

	t.Run("returns the matching count", func(t *testing.T) {
		var gotPath, gotPadding string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotPadding = r.Header.Get("Add-Padding")
			fmt.Fprintf(w, "0018A45C4D1DEF81644B54AB7F969B88D65:1\r\n%s:42\r\nFFFFF0000000000000000000000000000000:0\r\n", suffix)
		}))
		defer srv.Close()

		count, err := NewPwnedChecker(srv.URL+"/", srv.Client()).Count(context.Background(), "Password123")

		require.NoError(t, err)
		assert.Equal(t, 42, count)
		assert.Equal(t, "/range/B2E98", gotPath)
		assert.Equal(t, "true", gotPadding)
	})

	t.Run("absent suffix is zero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "0018A45C4D1DEF81644B54AB7F969B88D65:1\r\n")
		}))
		defer srv.Close()

		count, err := NewPwnedChecker(srv.URL, srv.Client()).Count(context.Background(), "Password123")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("non 200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewPwnedChecker(srv.URL, srv.Client()).Count(context.Background(), "Password123")
		assert.Error(t, err)
	})
}
