package domain

import "time"

// BackupCode is a single-use MFA fallback. Only the SHA-256 of the code is kept.
type BackupCode struct {
	CodeHash string     `json:"codeHash" bson:"codeHash"`
	Used     bool       `json:"used" bson:"used"`
	UsedAt   *time.Time `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
}

// UnusedBackupCodes counts codes that can still authenticate.
func (u *Identity) UnusedBackupCodes() int {
	n := 0
	for _, c := range u.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}

// ConsumeBackupCode marks the unused code with the given hash as used.
// It reports false when no unused code matches.
func (u *Identity) ConsumeBackupCode(hash string, at time.Time) bool {
	for i := range u.BackupCodes {
		c := &u.BackupCodes[i]
		if c.Used || c.CodeHash != hash {
			continue
		}
		c.Used = true
		c.UsedAt = &at
		return true
	}
	return false
}

// ClearMFA drops the secret, the enabled flag and every backup code.
func (u *Identity) ClearMFA() {
	u.MFAEnabled = false
	u.MFASecret = ""
	u.MFALastStep = 0
	u.BackupCodes = nil
}
