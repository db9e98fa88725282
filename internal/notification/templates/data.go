package templates

// Brand is the per site look of an email.
type Brand struct {
	SiteName     string
	LogoURL      string
	PrimaryColor string
	SupportEmail string
	Domain       string
}

// OTPData holds variables for every one-time code email.
type OTPData struct {
	FirstName        string
	Code             string
	ExpiresInMinutes int
	Brand            Brand
}

var (
	ConfirmSignup = Expect[OTPData]("otp.confirm_signup")
	PasswordReset = Expect[OTPData]("otp.password_reset")
	LoginVerify   = Expect[OTPData]("otp.login_verify")
)

// ForPurpose returns the template that delivers a code of the given purpose.
func ForPurpose(purpose string) (Handle[OTPData], bool) {
	switch purpose {
	case "confirm_signup":
		return ConfirmSignup, true
	case "password_reset":
		return PasswordReset, true
	case "login_verify":
		return LoginVerify, true
	}
	return Handle[OTPData]{}, false
}
