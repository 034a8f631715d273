package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("5f4dcc3b5aa765d61d8327deb882cf99")
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "5f4dcc3b5aa765d61d8327deb882cf99", hash)
}

func TestCheckPassword_Correct(t *testing.T) {
	hash, err := HashPassword("mypassword")
	assert.NoError(t, err)
	assert.True(t, CheckPassword("mypassword", hash))
}

func TestCheckPassword_Wrong(t *testing.T) {
	hash, err := HashPassword("mypassword")
	assert.NoError(t, err)
	assert.False(t, CheckPassword("wrongpassword", hash))
	assert.False(t, CheckPassword("mypassword", "not-a-hash"))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "cookie_zi", SafeName(" Cookie Zi "))
	assert.Equal(t, "rrtyui", SafeName("rrtyui"))
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"ab", "Cookiezi", "[Toy]", "my name", "a-b_c"} {
		assert.NoError(t, ValidateName(ok), ok)
	}
	for _, bad := range []string{"", "a", "sixteen_chars_xx", " lead", "trail ", "semi;colon", "ünï"} {
		assert.Error(t, ValidateName(bad), bad)
	}
}

// Property: HashPassword always produces a hash that CheckPassword verifies.
func TestPropertyHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringMatching(`[a-f0-9]{32}`).Draw(t, "password")
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		if !CheckPassword(password, hash) {
			t.Fatalf("CheckPassword failed for password %q", password)
		}
	})
}

// Property: SafeName is idempotent.
func TestPropertySafeNameIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9 _-]{0,15}`).Draw(t, "name")
		once := SafeName(name)
		if SafeName(once) != once {
			t.Fatalf("SafeName(%q) not idempotent: %q", name, once)
		}
	})
}
