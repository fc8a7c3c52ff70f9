package dto

import (
	"testing"

	"authority/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidate(t *testing.T) {
	ok := RegisterRequest{Name: " Alice ", Email: "alice@example.com", Password: "Password1!"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "Alice", ok.Name)

	cases := map[string]RegisterRequest{
		"short name":     {Name: "A", Email: "a@example.com", Password: "Password1!"},
		"long name":      {Name: "abcdefghijklmnopqrstuvwxyz012345", Email: "a@example.com", Password: "Password1!"},
		"bad email":      {Name: "Alice", Email: "not-an-email", Password: "Password1!"},
		"display email":  {Name: "Alice", Email: "Alice <a@example.com>", Password: "Password1!"},
		"short password": {Name: "Alice", Email: "a@example.com", Password: "Pa1!"},
		"no upper":       {Name: "Alice", Email: "a@example.com", Password: "password1!"},
		"no special":     {Name: "Alice", Email: "a@example.com", Password: "Password12"},
		"no digit":       {Name: "Alice", Email: "a@example.com", Password: "Password!!"},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			err := r.Validate()
			require.ErrorIs(t, err, domain.ErrValidationFailed)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Field)
		})
	}
}

func TestMFALoginValidateExactlyOne(t *testing.T) {
	both := MFALoginRequest{ChallengeID: "c", Token: "123456", BackupCode: "abcd1234"}
	require.ErrorIs(t, both.Validate(), domain.ErrValidationFailed)

	neither := MFALoginRequest{ChallengeID: "c"}
	require.ErrorIs(t, neither.Validate(), domain.ErrValidationFailed)

	noChallenge := MFALoginRequest{Token: "123456"}
	require.ErrorIs(t, noChallenge.Validate(), domain.ErrValidationFailed)

	totp := MFALoginRequest{ChallengeID: "c", Token: "123456"}
	require.NoError(t, totp.Validate())

	backup := MFALoginRequest{ChallengeID: "c", BackupCode: " abcd1234 "}
	require.NoError(t, backup.Validate())
	assert.Equal(t, "abcd1234", backup.BackupCode)
}

func TestOTPFormat(t *testing.T) {
	for _, bad := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		r := VerifyOTPRequest{OTP: bad}
		assert.ErrorIs(t, r.Validate(), domain.ErrValidationFailed, bad)
	}
	r := VerifyOTPRequest{OTP: "012345"}
	assert.NoError(t, r.Validate())
}
