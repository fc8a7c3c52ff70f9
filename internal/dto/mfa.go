package dto

import "strings"

type MFASetupResponse struct {
	Secret     string `json:"secret"`
	QRCode     string `json:"qrCode"` // data:image/png;base64 URL
	OTPAuthURL string `json:"otpauthUrl"`
}

type MFAEnableRequest struct {
	Token string `json:"token"`
}

func (r *MFAEnableRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	return validateOTP("token", r.Token)
}

type MFADisableRequest struct {
	Password string `json:"password"`
}

func (r *MFADisableRequest) Validate() error {
	return required("password", r.Password)
}

type MFAEnableResponse struct {
	BackupCodes []string `json:"backupCodes"`
}
