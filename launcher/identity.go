package launcher

import (
	"fmt"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const identityCacheSize = 16

// identity is a resolved OS user the launcher can switch to.
type identity struct {
	Username string
	UID      string
	Home     string
}

// identityCache memoizes os/user lookups; kiosk targets launch the same one
// or two users over and over across restarts.
type identityCache struct {
	cache  *lru.Cache[string, identity]
	lookup func(username string) (*user.User, error)
}

func newIdentityCache() *identityCache {
	cache, _ := lru.New[string, identity](identityCacheSize)
	return &identityCache{
		cache:  cache,
		lookup: user.Lookup,
	}
}

func (ic *identityCache) resolve(username string) (identity, error) {
	if id, ok := ic.cache.Get(username); ok {
		return id, nil
	}

	u, err := ic.lookup(username)
	if err != nil {
		return identity{}, fmt.Errorf("user %q not found: %w", username, err)
	}

	id := identity{Username: u.Username, UID: u.Uid, Home: u.HomeDir}
	ic.cache.Add(username, id)
	return id, nil
}

// sessionEnv returns the display/session variables a GUI application needs
// when launched as a different user on the kiosk seat.
func sessionEnv(id identity) map[string]string {
	return map[string]string{
		"HOME":            id.Home,
		"USER":            id.Username,
		"LOGNAME":         id.Username,
		"XDG_RUNTIME_DIR": "/run/user/" + id.UID,
		"XAUTHORITY":      filepath.Join(id.Home, ".Xauthority"),
		"DISPLAY":         ":0",
	}
}

// mergeEnv applies overrides onto a base environment, replacing existing
// entries and appending new ones in sorted key order.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if v, ok := overrides[key]; ok {
			merged = append(merged, key+"="+v)
			seen[key] = true
			continue
		}
		merged = append(merged, kv)
	}

	extra := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
