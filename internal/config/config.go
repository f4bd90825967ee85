// Package config loads the agent and relay configuration from a YAML
// file with sane defaults; command-line flags override file values at the
// call sites.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/extsync/internal/transport"
)

// Sync is the synchronization configuration surface.
type Sync struct {
	// Providers selects the transport channels to use, by name.
	Providers []string `yaml:"providers"`
	// Interval between scheduled sync cycles.
	Interval Duration `yaml:"interval"`
	// RetryCeiling bounds automatic retries of queued snapshots.
	RetryCeiling int `yaml:"retry_ceiling"`
	// Enabled gates the whole engine.
	Enabled bool `yaml:"enabled"`
}

// Agent is the full agent-side configuration.
type Agent struct {
	ServerURL     string `yaml:"server_url"`
	DBPath        string `yaml:"db_path"`
	NativePath    string `yaml:"native_channel_path"`
	PeerListen    string `yaml:"peer_listen"`
	PeerBroadcast string `yaml:"peer_broadcast"`
	Sync          Sync   `yaml:"sync"`
}

// Server is the relay server configuration.
type Server struct {
	ListenAddr     string        `yaml:"listen_addr"`
	DBPath         string        `yaml:"db_path"`
	JWTSecret      string        `yaml:"jwt_secret"`
	AccessTokenTTL Duration `yaml:"access_token_ttl"`
}

// DefaultAgent returns the agent defaults.
func DefaultAgent() Agent {
	return Agent{
		ServerURL:     "http://localhost:8080",
		DBPath:        "extsync-agent.db",
		NativePath:    "extsync-channel.db",
		PeerListen:    ":8391",
		PeerBroadcast: "255.255.255.255:8391",
		Sync: Sync{
			Enabled:      true,
			Interval:     Duration(5 * time.Minute),
			RetryCeiling: 5,
			Providers: []string{
				transport.NameLocalBroadcast,
				transport.NameCloudDocument,
				transport.NameNativeStorage,
				transport.NameDeferredTask,
			},
		},
	}
}

// DefaultServer returns the relay defaults.
func DefaultServer() Server {
	return Server{
		ListenAddr:     ":8080",
		DBPath:         "extsync-relay.db",
		AccessTokenTTL: Duration(15 * time.Minute),
	}
}

// LoadAgent reads an agent config file over the defaults. An empty path
// returns plain defaults.
func LoadAgent(path string) (Agent, error) {
	cfg := DefaultAgent()
	if path == "" {
		return cfg, nil
	}
	if err := loadInto(path, &cfg); err != nil {
		return Agent{}, err
	}
	if err := cfg.Sync.Validate(); err != nil {
		return Agent{}, err
	}
	return cfg, nil
}

// LoadServer reads a relay config file over the defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}
	if err := loadInto(path, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects unusable sync settings.
func (s *Sync) Validate() error {
	if s.Interval.Std() < time.Second {
		return fmt.Errorf("sync interval %s is below the 1s minimum", s.Interval.Std())
	}
	if s.RetryCeiling < 0 {
		return fmt.Errorf("retry ceiling must not be negative")
	}
	known := map[string]struct{}{
		transport.NameLocalBroadcast: {},
		transport.NameCloudDocument:  {},
		transport.NameNativeStorage:  {},
		transport.NamePeerChannel:    {},
		transport.NameDeferredTask:   {},
	}
	for _, name := range s.Providers {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown transport provider %q", name)
		}
	}
	return nil
}

func loadInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}
