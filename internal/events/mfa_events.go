package events

import "time"

type MfaEnabled struct {
	UserID      string    `json:"userId"`
	BackupCodes int       `json:"backupCodes"`
	At          time.Time `json:"at"`
}

func (e MfaEnabled) Action() string  { return "mfa.enabled" }
func (e MfaEnabled) Subject() string { return e.UserID }

type MfaDisabled struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

func (e MfaDisabled) Action() string  { return "mfa.disabled" }
func (e MfaDisabled) Subject() string { return e.UserID }

type BackupCodeUsed struct {
	UserID    string    `json:"userId"`
	Remaining int       `json:"remaining"`
	At        time.Time `json:"at"`
}

func (e BackupCodeUsed) Action() string  { return "mfa.backup_code_used" }
func (e BackupCodeUsed) Subject() string { return e.UserID }
