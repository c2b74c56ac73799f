package access

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed menu.yaml
var defaultMenuYAML []byte

// MenuEntry is one navigation item.
type MenuEntry struct {
	Key          string `yaml:"key"`
	Label        string `yaml:"label"`
	Path         string `yaml:"path"`
	AllowedRoles []Role `yaml:"roles"`
}

// Rule returns the access rule for the entry.
func (m MenuEntry) Rule() AccessRule {
	return AccessRule{AllowedRoles: Allow(m.AllowedRoles...)}
}

// Menu is the ordered navigation declaration.
type Menu []MenuEntry

// VisibleMenu filters the menu for role, keeping declaration order.
func VisibleMenu(role Role, menu Menu) Menu {
	visible := make(Menu, 0, len(menu))
	for _, entry := range menu {
		if entry.Rule().Permits(role) {
			visible = append(visible, entry)
		}
	}
	return visible
}

// LoadMenu parses a YAML menu declaration.
func LoadMenu(r io.Reader) (Menu, error) {
	var menu Menu
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&menu); err != nil {
		if errors.Is(err, io.EOF) {
			return Menu{}, nil
		}
		return nil, fmt.Errorf("access: decode menu: %w", err)
	}
	seen := make(map[string]struct{}, len(menu))
	for i, entry := range menu {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			return nil, fmt.Errorf("access: menu entry %d has no key", i)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("access: duplicate menu key %q", key)
		}
		seen[key] = struct{}{}
		for _, role := range entry.AllowedRoles {
			if !role.Known() {
				return nil, fmt.Errorf("access: menu entry %q references unknown role %q", key, role)
			}
		}
	}
	return menu, nil
}

// DefaultMenu returns the embedded navigation declaration.
func DefaultMenu() Menu {
	menu, err := LoadMenu(bytes.NewReader(defaultMenuYAML))
	if err != nil {
		panic(err)
	}
	return menu
}

// LoadMenuFile reads a menu override from path. An empty path yields DefaultMenu.
func LoadMenuFile(path string) (Menu, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultMenu(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("access: open menu: %w", err)
	}
	defer f.Close()
	return LoadMenu(f)
}
