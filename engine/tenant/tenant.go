package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Directory holds the tenant profiles loaded from the clients file.
// Profiles are read-only from the engine's perspective; edits happen
// through the admin API and a reload.
type Directory struct {
	profiles []contractx.TenantProfile
	byID     map[string]*contractx.TenantProfile
}

// Load reads and validates the clients file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file %s: %w", path, err)
	}

	var profiles []contractx.TenantProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse clients file %s: %w", path, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: clients file %s declares no tenants", contractx.ErrValidation, path)
	}

	dir := &Directory{
		profiles: profiles,
		byID:     make(map[string]*contractx.TenantProfile, len(profiles)),
	}
	for i := range dir.profiles {
		p := &dir.profiles[i]
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", p.ID, err)
		}
		if _, dup := dir.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tenant id %q", contractx.ErrValidation, p.ID)
		}
		dir.byID[p.ID] = p
	}
	return dir, nil
}

// Validate checks the fields the engine depends on.
func Validate(p *contractx.TenantProfile) error {
	if p == nil {
		return fmt.Errorf("%w: profile is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(p.DefaultInstruction) == "" {
		return fmt.Errorf("%w: default instruction is required", contractx.ErrValidation)
	}
	if p.KnowledgeBasePath != "" {
		if filepath.IsAbs(p.KnowledgeBasePath) || hasDotDot(p.KnowledgeBasePath) {
			return fmt.Errorf("%w: knowledge base path %q", contractx.ErrPathEscape, p.KnowledgeBasePath)
		}
	}
	for _, tool := range p.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return fmt.Errorf("%w: tool declaration without a name", contractx.ErrValidation)
		}
	}
	return nil
}

func hasDotDot(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// Get returns a profile by tenant id.
func (d *Directory) Get(id string) (*contractx.TenantProfile, bool) {
	p, ok := d.byID[id]
	return p, ok
}

// Default returns the first declared tenant, the single-tenant
// deployment case.
func (d *Directory) Default() *contractx.TenantProfile {
	return &d.profiles[0]
}

// ByWhatsAppPhone routes an inbound WhatsApp event by the receiving
// phone-number id; unbound numbers fall back to the default tenant.
func (d *Directory) ByWhatsAppPhone(phoneNumberID string) *contractx.TenantProfile {
	for i := range d.profiles {
		if d.profiles[i].Channels.WhatsAppPhoneNumberID == phoneNumberID {
			return &d.profiles[i]
		}
	}
	return d.Default()
}

// ByMessengerPage routes an inbound Messenger event by page id.
func (d *Directory) ByMessengerPage(pageID string) *contractx.TenantProfile {
	for i := range d.profiles {
		if d.profiles[i].Channels.MessengerPageID == pageID {
			return &d.profiles[i]
		}
	}
	return d.Default()
}

// IDs lists the declared tenant ids in file order.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.profiles))
	for i := range d.profiles {
		ids = append(ids, d.profiles[i].ID)
	}
	return ids
}
