package security

import (
	"strings"

	"github.com/pquerna/otp/totp"
)

// totpIssuer is the issuer shown in authenticator apps.
const totpIssuer = "Aurora"

// GenerateTOTPSecret creates a new TOTP secret for the given account.
func GenerateTOTPSecret(accountName string) (secret, otpauthURL string, err error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: strings.TrimSpace(accountName),
	})
	if errGenerate != nil {
		return "", "", errGenerate
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTPCode checks a 6-digit TOTP code against a secret.
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(strings.TrimSpace(code), strings.TrimSpace(secret))
}
