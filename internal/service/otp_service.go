package service

type OTPGenerator interface {
	// Generate returns a six digit numeric code.
	Generate() (string, error)
}
