package blesm

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/pdu"
	"gopkg.in/yaml.v2"
)

// DefaultTimeout is the SMP procedure timeout [Vol 3, Part H, 3.4].
const DefaultTimeout = 30 * time.Second

type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"maxSizeMB"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
}

type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Config holds the local pairing capabilities and the ambient settings of
// a security manager instance.
type Config struct {
	IOCap        uint8         `yaml:"io_cap" json:"ioCap"`
	OOB          bool          `yaml:"oob" json:"oob"`
	Bonding      bool          `yaml:"bonding" json:"bonding"`
	MITM         bool          `yaml:"mitm" json:"mitm"`
	SC           bool          `yaml:"sc" json:"sc"`
	SCOnly       bool          `yaml:"sc_only" json:"scOnly"`
	Keypress     bool          `yaml:"keypress" json:"keypress"`
	MaxKeySize   uint8         `yaml:"max_key_size" json:"maxKeySize"`
	MinKeySize   uint8         `yaml:"min_key_size" json:"minKeySize"`
	OurKeyDist   uint8         `yaml:"our_key_dist" json:"ourKeyDist"`
	TheirKeyDist uint8         `yaml:"their_key_dist" json:"theirKeyDist"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`

	Log   LogConfig   `yaml:"log" json:"log"`
	Store StoreConfig `yaml:"store" json:"store"`
}

func DefaultConfig() Config {
	return Config{
		IOCap:        pdu.IOCapNoInputNoOutput,
		Bonding:      true,
		SC:           true,
		MaxKeySize:   pdu.MaxKeySize,
		MinKeySize:   pdu.MinKeySize,
		OurKeyDist:   pdu.KeyDistEnc | pdu.KeyDistID,
		TheirKeyDist: pdu.KeyDistEnc | pdu.KeyDistID,
		Timeout:      DefaultTimeout,
		Log:          LogConfig{Level: "info"},
		Store:        StoreConfig{Path: "bonds.json"},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.IOCap >= pdu.IOCapReservedStart:
		return errors.Errorf("invalid io capabilities 0x%02x", c.IOCap)
	case c.MaxKeySize < pdu.MinKeySize || c.MaxKeySize > pdu.MaxKeySize:
		return errors.Errorf("max key size %d out of range", c.MaxKeySize)
	case c.MinKeySize < pdu.MinKeySize || c.MinKeySize > c.MaxKeySize:
		return errors.Errorf("min key size %d out of range", c.MinKeySize)
	case c.OurKeyDist&(pdu.KeyDistReserved|pdu.KeyDistLink) != 0:
		return errors.Errorf("invalid local key distribution 0x%02x", c.OurKeyDist)
	case c.TheirKeyDist&(pdu.KeyDistReserved|pdu.KeyDistLink) != 0:
		return errors.Errorf("invalid remote key distribution 0x%02x", c.TheirKeyDist)
	case c.SCOnly && !c.SC:
		return errors.New("sc_only requires sc")
	case c.Timeout <= 0:
		return errors.Errorf("timeout %v must be positive", c.Timeout)
	}
	return nil
}

// AuthReq assembles the AuthReq octet advertised in pairing commands.
func (c Config) AuthReq() uint8 {
	var a uint8
	if c.Bonding {
		a |= pdu.AuthReqBond
	}
	if c.MITM {
		a |= pdu.AuthReqMITM
	}
	if c.SC {
		a |= pdu.AuthReqSC
	}
	if c.Keypress {
		a |= pdu.AuthReqKeypress
	}
	return a
}

// OOBFlag is the OOB data flag advertised in pairing commands.
func (c Config) OOBFlag() uint8 {
	if c.OOB {
		return pdu.OOBPresent
	}
	return pdu.OOBNotPresent
}
