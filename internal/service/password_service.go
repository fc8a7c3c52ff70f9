package service

// PasswordCredential is the read side of a stored password hash.
type PasswordCredential interface {
	GetAlgo() string
	GetHash() []byte
	GetSalt() []byte
	GetParamsJSON() []byte
	GetPasswordVer() int
}

type PasswordService interface {
	Hash(password string) (hash, salt, paramsJSON []byte, algo string, ver int, err error)
	Verify(password string, cred PasswordCredential) (rehashNeeded bool, ok bool)
}
