package domain

// PasswordCredential is embedded in the identity record. The argon2 parameters
// travel with the hash so verification always uses the cost it was created with.
type PasswordCredential struct {
	Algo        string `gorm:"type:text" bson:"algo" json:"-"`
	Hash        []byte `bson:"hash" json:"-"`
	Salt        []byte `bson:"salt" json:"-"`
	ParamsJSON  []byte `bson:"params" json:"-"`
	PasswordVer int    `gorm:"not null;default:1" bson:"ver" json:"-"`
}

func (p *PasswordCredential) GetAlgo() string       { return p.Algo }
func (p *PasswordCredential) GetHash() []byte       { return p.Hash }
func (p *PasswordCredential) GetSalt() []byte       { return p.Salt }
func (p *PasswordCredential) GetParamsJSON() []byte { return p.ParamsJSON }
func (p *PasswordCredential) GetPasswordVer() int   { return p.PasswordVer }
