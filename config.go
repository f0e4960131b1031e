package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind              string
	dataDir           string
	heartbeatInterval time.Duration
	maxRounds         int
	port              int
	prefix            string
	profile           bool
	reconnectGrace    time.Duration
	sessionCapacity   int
	sessionTimeout    time.Duration
	startQuorum       int
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
	votingDuration    time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.sessionCapacity < 2 {
		return fmt.Errorf("invalid session capacity (must be at least 2): %d", c.sessionCapacity)
	}
	if c.startQuorum < 2 || c.startQuorum > c.sessionCapacity {
		return fmt.Errorf("invalid start quorum (must be between 2 and session capacity): %d", c.startQuorum)
	}
	if c.votingDuration <= 0 || c.heartbeatInterval <= 0 || c.reconnectGrace <= 0 {
		return errors.New("voting, heartbeat, and grace durations must be positive")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MINDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mindbox",
		Short:         "A session coordinator for imposter-style social deduction games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MINDBOX_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "directory for the message/vote store; empty runs in-memory (env: MINDBOX_DATA_DIR)")
	fs.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 10*time.Second, "silence before a participant is considered disconnected (env: MINDBOX_HEARTBEAT_INTERVAL)")
	fs.IntVar(&cfg.maxRounds, "max-rounds", 5, "rounds before a game ends under the default rules (env: MINDBOX_MAX_ROUNDS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MINDBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MINDBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MINDBOX_PROFILE)")
	fs.DurationVar(&cfg.reconnectGrace, "reconnect-grace", 60*time.Second, "window in which a disconnected participant may resume its identity (env: MINDBOX_RECONNECT_GRACE)")
	fs.IntVar(&cfg.sessionCapacity, "session-capacity", 4, "maximum participants per session (env: MINDBOX_SESSION_CAPACITY)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: MINDBOX_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.startQuorum, "start-quorum", 3, "participants required before a game can start (env: MINDBOX_START_QUORUM)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MINDBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MINDBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MINDBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MINDBOX_VERSION)")
	fs.DurationVar(&cfg.votingDuration, "voting-duration", 45*time.Second, "length of each voting phase (env: MINDBOX_VOTING_DURATION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mindbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
