package impl

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"

	"authority/internal/domain"
	"authority/internal/service"

	"golang.org/x/crypto/argon2"
)

type Argon2Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"` // iterations
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"`
	KeyLen  uint32 `json:"k"`
	SaltLen uint32 `json:"s"`
}

// DefaultArgon2Params costs a few tens of milliseconds per hash on server hardware.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

type PasswordServiceImpl struct {
	currentVer int // bump when the policy changes
	cur        Argon2Params
	algoName   string
}

func NewPasswordServiceArgon2id() *PasswordServiceImpl {
	return NewPasswordServiceWithParams(DefaultArgon2Params)
}

func NewPasswordServiceWithParams(p Argon2Params) *PasswordServiceImpl {
	return &PasswordServiceImpl{currentVer: 1, algoName: "argon2id", cur: p}
}

func (p *PasswordServiceImpl) Hash(password string) (hash, salt, paramsJSON []byte, algo string, ver int, err error) {
	if password == "" {
		return nil, nil, nil, "", 0, ErrEmptyPassword
	}
	salt = make([]byte, p.cur.SaltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, "", 0, err
	}
	hash = argon2.IDKey([]byte(password), salt, p.cur.Time, p.cur.Memory, p.cur.Threads, p.cur.KeyLen)
	paramsJSON, err = json.Marshal(p.cur)
	if err != nil {
		return nil, nil, nil, "", 0, err
	}
	return hash, salt, paramsJSON, p.algoName, p.currentVer, nil
}

func (p *PasswordServiceImpl) Verify(password string, cred service.PasswordCredential) (rehashNeeded bool, ok bool) {
	if len(cred.GetHash()) == 0 {
		return false, false
	}
	if cred.GetAlgo() != p.algoName {
		return true, false
	}
	var stored Argon2Params
	if err := json.Unmarshal(cred.GetParamsJSON(), &stored); err != nil {
		return true, false
	}
	calculated := argon2.IDKey([]byte(password), cred.GetSalt(), stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	ok = subtle.ConstantTimeCompare(calculated, cred.GetHash()) == 1

	rehashNeeded = ok && (cred.GetPasswordVer() != p.currentVer || stored != p.cur)
	return rehashNeeded, ok
}

// hashPassword builds the credential stored on an identity.
func hashPassword(ps service.PasswordService, password string) (domain.PasswordCredential, error) {
	hash, salt, params, algo, ver, err := ps.Hash(password)
	if err != nil {
		return domain.PasswordCredential{}, err
	}
	return domain.PasswordCredential{Algo: algo, Hash: hash, Salt: salt, ParamsJSON: params, PasswordVer: ver}, nil
}
