// Package ircore is the root package of this module: it glues the protocol
// core in irc/ to server configuration loaded from YAML, following the
// shape of the IRC client this module's irc/ package was distilled from.
package ircore

import (
	"errors"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// NickIdentifySyntax selects the word order of the IDENTIFY command sent to
// NickServ once SASL/registration has resolved which nick we ended up with.
type NickIdentifySyntax int

const (
	NickPassword NickIdentifySyntax = iota // IDENTIFY <nick> <password>
	PasswordNick                           // IDENTIFY <password> <nick>
)

func (s *NickIdentifySyntax) UnmarshalText(data []byte) error {
	switch string(data) {
	case "", "nick-password":
		*s = NickPassword
	case "password-nick":
		*s = PasswordNick
	default:
		return fmt.Errorf("unknown nick_identify_syntax %q", data)
	}
	return nil
}

// SASLConfig is the union of the two SASL mechanisms this module supports.
// Exactly one of Plain or External should be set; UnmarshalYAML enforces
// that shape from the on-disk "mechanism: plain|external" form.
type SASLConfig struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
}

func (s *SASLConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw SASLConfig
	var r raw
	if err := unmarshal(&r); err != nil {
		return err
	}
	*s = SASLConfig(r)
	switch s.Mechanism {
	case "plain":
		if s.Username == "" || s.Password == "" {
			return errors.New("sasl: plain requires username and password")
		}
	case "external":
		if s.CertFile == "" {
			return errors.New("sasl: external requires cert_file")
		}
	default:
		return fmt.Errorf("sasl: unknown mechanism %q", s.Mechanism)
	}
	return nil
}

// clampedSeconds is a duration given in seconds in YAML, clamped to
// [5, 3600] the same way the original implementation clamps its WHO poll
// intervals, stored internally as a plain int to keep ParseConfig's
// defaulting logic (below) simple.
type clampedSeconds int

func (c *clampedSeconds) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err != nil {
		return err
	}
	*c = clampedSeconds(clamp(n, 5, 3600))
	return nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ServerConfig holds every option the protocol core in irc/ recognizes for
// one server (spec §6). Transport, TLS, proxy and ping settings are consumed
// by the external transport collaborator and are not modeled here.
type ServerConfig struct {
	Nickname string   `yaml:"nickname"`
	AltNicks []string `yaml:"alt_nicks"`
	Username string   `yaml:"username"`
	Realname string   `yaml:"realname"`
	Password string   `yaml:"password"`

	NickPassword       string             `yaml:"nick_password"`
	ShouldGhost        bool               `yaml:"should_ghost"`
	GhostSequence      []string           `yaml:"ghost_sequence"`
	NickIdentifySyntax NickIdentifySyntax `yaml:"nick_identify_syntax"`

	Channels    []string          `yaml:"channels"`
	ChannelKeys map[string]string `yaml:"channel_keys"`
	Umodes      string            `yaml:"umodes"`

	SASL *SASLConfig `yaml:"sasl"`

	OnConnect []string `yaml:"on_connect"`

	WhoPollEnabled   bool            `yaml:"who_poll_enabled"`
	WhoPollInterval  clampedSeconds  `yaml:"who_poll_interval"`
	WhoRetryInterval clampedSeconds  `yaml:"who_retry_interval"`

	Monitor []string `yaml:"monitor"`
}

const (
	defaultWhoPollInterval  = 180
	defaultWhoRetryInterval = 10
)

// ParseConfig unmarshals buf into a ServerConfig and applies the defaults
// the original implementation applies: username/realname default to the
// nickname, who_poll_enabled defaults to true, and the poll/retry intervals
// default to 180s/10s (clamped the same as any configured value) when left
// unset.
func ParseConfig(buf []byte) (cfg ServerConfig, err error) {
	cfg.WhoPollEnabled = true
	cfg.WhoPollInterval = defaultWhoPollInterval
	cfg.WhoRetryInterval = defaultWhoRetryInterval

	if err = yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, err
	}

	if cfg.Nickname == "" {
		return cfg, errors.New("nickname is required")
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Nickname
	}
	if cfg.Realname == "" {
		cfg.Realname = cfg.Nickname
	}

	return cfg, nil
}

// LoadConfigFile reads and parses a YAML server configuration file.
func LoadConfigFile(filename string) (cfg ServerConfig, err error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the file: %w", err)
	}

	cfg, err = ParseConfig(buf)
	if err != nil {
		return cfg, fmt.Errorf("invalid content found in the file: %w", err)
	}
	return cfg, nil
}
