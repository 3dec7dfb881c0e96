package panel

import (
	"context"
	"fmt"
	"sync"

	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/pkg/marzban"
	"vpn-shop-bot/pkg/xui"
)

// Store is the panels table
type Store interface {
	GetPanel(ctx context.Context, id int64) (*storage.Panel, error)
	AddPanel(ctx context.Context, p *storage.Panel) (int64, error)
}

// Factory builds an adapter for a stored panel
type Factory func(p *storage.Panel, kind Kind) (Panel, error)

// Registry resolves panel ids to adapters, constructing each one once
type Registry struct {
	store   Store
	factory Factory
	log     *logger.Logger

	mu    sync.Mutex
	cache map[int64]Panel
}

func NewRegistry(store Store, log *logger.Logger) *Registry {
	r := &Registry{
		store: store,
		log:   log.Component("panel"),
		cache: make(map[int64]Panel),
	}
	r.factory = r.build
	return r
}

// SetFactory replaces adapter construction
func (r *Registry) SetFactory(f Factory) {
	r.factory = f
}

func (r *Registry) build(p *storage.Panel, kind Kind) (Panel, error) {
	l := r.log.WithField("panel_id", p.ID)
	switch kind {
	case KindXUI:
		return NewXUI(xui.NewClient(p.URL, p.Username, p.Password), l), nil
	case KindMarzban:
		return NewMarzban(marzban.NewClient(p.URL, p.Username, p.Password), p.URL, l), nil
	default:
		return nil, fmt.Errorf("unsupported panel type %q", p.PanelType)
	}
}

// Register validates the panel type and stores the panel
func (r *Registry) Register(ctx context.Context, p *storage.Panel) (int64, error) {
	if _, err := ParseKind(p.PanelType); err != nil {
		return 0, err
	}
	id, err := r.store.AddPanel(ctx, p)
	if err != nil {
		return 0, err
	}
	r.log.WithFields(map[string]interface{}{
		"panel_id": id,
		"type":     p.PanelType,
	}).Info("panel registered")
	return id, nil
}

// Get returns the adapter for panelID
func (r *Registry) Get(ctx context.Context, panelID int64) (Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[panelID]; ok {
		return p, nil
	}

	row, err := r.store.GetPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(row.PanelType)
	if err != nil {
		return nil, err
	}
	p, err := r.factory(row, kind)
	if err != nil {
		return nil, err
	}
	r.cache[panelID] = p
	return p, nil
}

// Invalidate drops a cached adapter
func (r *Registry) Invalidate(panelID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, panelID)
}
