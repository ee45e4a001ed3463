package sshutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/rileyhilliard/keyup/internal/errors"
	"github.com/rileyhilliard/keyup/internal/util"
)

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias        string // The Host pattern (alias)
	Hostname     string // The HostName value (actual host to connect to)
	User         string // The User value
	Port         string // The Port value
	IdentityFile string // The IdentityFile value
}

// Description returns a user-friendly description of the host.
func (h SSHHostEntry) Description() string {
	parts := []string{}

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}

	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}

	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}

	if len(parts) == 0 {
		return h.Alias
	}

	return strings.Join(parts, ", ")
}

// KeyOnDisk reports whether the configured IdentityFile exists.
func (h SSHHostEntry) KeyOnDisk() bool {
	if h.IdentityFile == "" {
		return false
	}
	_, err := os.Stat(h.IdentityFile)
	return err == nil
}

// ParseSSHConfig parses ~/.ssh/config and returns all host entries.
// It filters out wildcards and includes hosts, returning only concrete host aliases.
func ParseSSHConfig() ([]SSHHostEntry, error) {
	configPath := filepath.Join(homeDir(), ".ssh", "config")
	return ParseSSHConfigFile(configPath)
}

// ParseSSHConfigFile parses the specified SSH config file.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	content, _, err := preprocessSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No SSH config is fine
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()

			// Skip wildcards and special patterns
			if strings.Contains(alias, "*") || strings.Contains(alias, "?") {
				continue
			}

			// Skip if we've already seen this alias
			if seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{
				Alias: alias,
			}

			// Get values from config
			if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
				entry.Hostname = hostname
			}

			if user, _ := cfg.Get(alias, "User"); user != "" {
				entry.User = user
			}

			if port, _ := cfg.Get(alias, "Port"); port != "" {
				entry.Port = port
			}

			if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
				entry.IdentityFile = expandPath(identity)
			}

			hosts = append(hosts, entry)
		}
	}

	// Sort by alias for consistent ordering
	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Alias < hosts[j].Alias
	})

	return hosts, nil
}

// ResolveAlias returns the entry for one alias from ~/.ssh/config.
func ResolveAlias(alias string) (SSHHostEntry, error) {
	return ResolveAliasFile(filepath.Join(homeDir(), ".ssh", "config"), alias)
}

// ResolveAliasFile returns the entry for one alias from the given config
// file. The alias must appear on a concrete Host line; defaults picked up
// from wildcard blocks alone don't count as a managed entry.
func ResolveAliasFile(configPath, alias string) (SSHHostEntry, error) {
	hosts, err := ParseSSHConfigFile(configPath)
	if err != nil {
		return SSHHostEntry{}, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't parse SSH config at %s", configPath),
			"Fix the syntax or move the broken lines below a Match directive.")
	}

	aliases := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h.Alias == alias {
			return h, nil
		}
		aliases = append(aliases, h.Alias)
	}

	suggestion := fmt.Sprintf("Run 'keyup bootstrap %s' first to create one.", alias)
	if similar := util.SuggestSimilar(alias, aliases, 3); len(similar) > 0 {
		suggestion = fmt.Sprintf("Did you mean one of these? %s", strings.Join(similar, ", "))
	}

	return SSHHostEntry{}, errors.New(errors.ErrConfig,
		fmt.Sprintf("No Host block for '%s' in %s", alias, configPath),
		suggestion)
}
