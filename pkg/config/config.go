// Package config loads the startup configuration of the controller.
// Values come from command line flags, POLSWITCH_* environment variables
// and an optional YAML config file, in that order of precedence.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/shaleman/polswitch/pkg/topoPolicy"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	log "github.com/sirupsen/logrus"
)

// Flag names, also the config file keys
const (
	CfgTransparent = "transparent"
	CfgHoldDown    = "hold-down"
	CfgIgnore      = "ignore"
	CfgListen      = "listen"
	CfgApiListen   = "api-listen"
	CfgPolicy      = "policy"
	CfgLoopGuard   = "loop-guard"
	CfgLogLevel    = "log-level"
	CfgConfigFile  = "config"
)

const envPrefix = "polswitch"

// Config is the validated startup configuration
type Config struct {
	Transparent bool
	HoldDown    time.Duration
	Ignore      []ofctrl.DPID
	Listen      string
	ApiListen   string // empty disables the diagnostics API
	PolicyFile  string // empty uses the built-in tables
	LoopGuard   bool
	LogLevel    log.Level
}

// AddFlags registers the controller flags
func AddFlags(flags *pflag.FlagSet) {
	flags.Bool(CfgTransparent, false, "Forward link-local frames (LLDP, 802.1X) instead of dropping them")
	flags.String(CfgHoldDown, "0", "Seconds to wait after a switch connects before flooding")
	flags.String(CfgIgnore, "", "Datapath ids to ignore, comma or space separated")
	flags.String(CfgListen, ":6633", "OpenFlow listen address")
	flags.String(CfgApiListen, ":9100", "Diagnostics API listen address, empty disables")
	flags.String(CfgPolicy, "", "Topology policy file (YAML), default built-in tables")
	flags.Bool(CfgLoopGuard, false, "Drop known unicast frames whose destination was learned on the ingress port")
	flags.String(CfgLogLevel, "info", "Log level")
	flags.String(CfgConfigFile, "", "Config file (YAML)")
}

// Load layers the config file, environment and flags and validates the
// result
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString(CfgConfigFile); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", cfgFile)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	holdDown, err := ParseHoldDown(v.GetString(CfgHoldDown))
	if err != nil {
		return nil, err
	}

	ignore, err := ParseIgnore(v.GetString(CfgIgnore))
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(v.GetString(CfgLogLevel))
	if err != nil {
		return nil, errors.Wrap(err, "log-level")
	}

	listen := v.GetString(CfgListen)
	if listen == "" {
		return nil, errors.New("listen address must not be empty")
	}

	return &Config{
		Transparent: v.GetBool(CfgTransparent),
		HoldDown:    holdDown,
		Ignore:      ignore,
		Listen:      listen,
		ApiListen:   v.GetString(CfgApiListen),
		PolicyFile:  v.GetString(CfgPolicy),
		LoopGuard:   v.GetBool(CfgLoopGuard),
		LogLevel:    level,
	}, nil
}

// ParseHoldDown parses the hold-down delay, a non-negative number of
// seconds
func ParseHoldDown(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	secs, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, errors.Errorf("expected hold-down to be a number, got %q", s)
	}

	return time.Duration(secs) * time.Second, nil
}

// ParseIgnore parses a comma or space separated list of datapath ids
func ParseIgnore(s string) ([]ofctrl.DPID, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	dpids := make([]ofctrl.DPID, 0, len(fields))
	for _, field := range fields {
		dpid, err := ofctrl.ParseDPID(field)
		if err != nil {
			return nil, errors.Wrapf(err, "ignore list entry %q", field)
		}
		dpids = append(dpids, dpid)
	}

	return dpids, nil
}

// Policy loads the configured topology policy
func (c *Config) Policy() (*topoPolicy.Policy, error) {
	if c.PolicyFile == "" {
		return topoPolicy.Default(), nil
	}

	return topoPolicy.Load(c.PolicyFile)
}
