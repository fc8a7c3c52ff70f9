package mailer

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"
)

// ServerList is the YAML file behind SMTP_CONFIG_FILE.
type ServerList struct {
	Servers []Server `yaml:"servers"`
	From    string   `yaml:"from"`
	Sender  string   `yaml:"sender"`
	ReplyTo []string `yaml:"replyTo"`
}

type Server struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Connections        int    `yaml:"connections"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	Auth               struct {
		Username string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	SendTimeout int `yaml:"sendTimeout"` // seconds
}

func (s Server) Address() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// ReadServerList parses the file strictly so a typo in a key fails at startup.
func ReadServerList(fname string) (ServerList, error) {
	var sl ServerList
	raw, err := os.ReadFile(fname)
	if err != nil {
		slog.Error("could not read smtp config file", slog.String("file", fname), slog.String("error", err.Error()))
		return sl, err
	}
	if err := yaml.UnmarshalStrict(raw, &sl); err != nil {
		return sl, fmt.Errorf("parse %s: %w", fname, err)
	}
	if len(sl.Servers) == 0 {
		return sl, fmt.Errorf("parse %s: no servers defined", fname)
	}
	return sl, nil
}
