package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/pkg/marzban"
	"vpn-shop-bot/pkg/xui"
)

func TestParseKind(t *testing.T) {
	for _, raw := range []string{"marzban", "Marzneshin", " MARZBAN "} {
		kind, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, KindMarzban, kind)
	}
	for _, raw := range []string{"xui", "x-ui", "3x-ui", "3XUI", "sanaei", "alireza", "tx-ui", "TXUI"} {
		kind, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, KindXUI, kind)
	}
	for _, raw := range []string{"", "hiddify", "wgdashboard"} {
		kind, err := ParseKind(raw)
		assert.Error(t, err, raw)
		assert.Equal(t, KindUnknown, kind)
	}
}

func TestExtendExpiry(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	future := now.AddDate(0, 0, 5)
	assert.Equal(t, future.AddDate(0, 0, 30), extendExpiry(future, now, 30))

	past := now.AddDate(0, 0, -5)
	assert.Equal(t, now.AddDate(0, 0, 30), extendExpiry(past, now, 30))

	assert.True(t, extendExpiry(time.Time{}, now, 30).IsZero())
	assert.Equal(t, 10*bytesPerGB+5*bytesPerGB, extendQuota(10*bytesPerGB, 5))
	assert.Zero(t, extendQuota(0, 5))
}

// fakeXUI is a minimal in-memory 3x-ui panel
type fakeXUI struct {
	mu       sync.Mutex
	inbounds map[int][]xui.ClientConfig
	deleted  []string
	failAdd  bool
}

func (f *fakeXUI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, obj interface{}) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "obj": obj})
	}
	inbound := func(id int) map[string]interface{} {
		settings, _ := json.Marshal(map[string]interface{}{"clients": f.inbounds[id]})
		return map[string]interface{}{"id": id, "settings": string(settings)}
	}

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "ok"})
		ok(w, nil)
	})
	mux.HandleFunc("/panel/setting/all", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]interface{}{"subURI": "https://sub.example.com/sub"})
	})
	mux.HandleFunc("/panel/api/inbounds/list", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var list []map[string]interface{}
		for id := range f.inbounds {
			list = append(list, inbound(id))
		}
		ok(w, list)
	})
	mux.HandleFunc("/panel/api/inbounds/get/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var id int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/panel/api/inbounds/get/"), "%d", &id)
		if _, exists := f.inbounds[id]; !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ok(w, inbound(id))
	})
	decode := func(r *http.Request) (int, xui.ClientConfig) {
		var body struct {
			ID       int    `json:"id"`
			Settings string `json:"settings"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var settings struct {
			Clients []xui.ClientConfig `json:"clients"`
		}
		assert.NoError(t, json.Unmarshal([]byte(body.Settings), &settings))
		return body.ID, settings.Clients[0]
	}
	mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id, client := decode(r)
		if f.failAdd {
			f.failAdd = false
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": "boom"})
			return
		}
		f.inbounds[id] = append(f.inbounds[id], client)
		ok(w, nil)
	})
	mux.HandleFunc("/panel/api/inbounds/updateClient/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id, client := decode(r)
		for i, c := range f.inbounds[id] {
			if c.ID == client.ID {
				f.inbounds[id][i] = client
			}
		}
		ok(w, nil)
	})
	mux.HandleFunc("/panel/api/inbounds/", func(w http.ResponseWriter, r *http.Request) {
		// /panel/api/inbounds/{id}/delClient/{uuid}
		f.mu.Lock()
		defer f.mu.Unlock()
		var id int
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/panel/api/inbounds/"), "/")
		if len(parts) != 3 || parts[1] != "delClient" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Sscanf(parts[0], "%d", &id)
		kept := f.inbounds[id][:0]
		for _, c := range f.inbounds[id] {
			if c.ID != parts[2] {
				kept = append(kept, c)
			}
		}
		f.inbounds[id] = kept
		f.deleted = append(f.deleted, parts[2])
		ok(w, nil)
	})
	return mux
}

func newXUIAdapter(t *testing.T, f *fakeXUI, now time.Time) *XUI {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	x := NewXUI(xui.NewClient(srv.URL, "admin", "pw"), logger.Nop())
	x.now = func() time.Time { return now }
	return x
}

func TestXUICreateAndRecreate(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeXUI{inbounds: map[int][]xui.ClientConfig{2: nil}}
	x := newXUIAdapter(t, f, now)
	ctx := context.Background()

	created, err := x.CreateUser(ctx, CreateRequest{Username: "u42", TrafficGB: 10, DurationDays: 30, InboundID: 2, TelegramID: 42})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UUID)
	assert.Equal(t, 2, created.InboundID)
	assert.True(t, strings.HasPrefix(created.SubscriptionURL, "https://sub.example.com/sub/"))
	assert.True(t, now.AddDate(0, 0, 30).Equal(created.ExpiresAt))

	renewed, err := x.RecreateOnInbound(ctx, 2, "u42", 5, 10)
	require.NoError(t, err)
	assert.NotEqual(t, created.UUID, renewed.UUID)
	assert.Equal(t, created.SubscriptionURL, renewed.SubscriptionURL)
	assert.True(t, now.AddDate(0, 0, 40).Equal(renewed.ExpiresAt))
	assert.Equal(t, []string{created.UUID}, f.deleted)

	require.Len(t, f.inbounds[2], 1)
	assert.Equal(t, 15*bytesPerGB, f.inbounds[2][0].TotalGB)
	assert.Equal(t, int64(42), int64(f.inbounds[2][0].TgID))
}

func TestXUIRecreateRestoresOnFailure(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeXUI{inbounds: map[int][]xui.ClientConfig{
		2: {{ID: "old-uuid", Email: "u1", Enable: true, SubID: "sub1"}},
	}}
	x := newXUIAdapter(t, f, now)

	f.failAdd = true
	_, err := x.RecreateOnInbound(context.Background(), 2, "u1", 1, 1)
	require.Error(t, err)

	require.Len(t, f.inbounds[2], 1)
	assert.Equal(t, "old-uuid", f.inbounds[2][0].ID)
}

func TestXUIRecreateUnsupportedAndMissing(t *testing.T) {
	f := &fakeXUI{inbounds: map[int][]xui.ClientConfig{2: nil}}
	x := newXUIAdapter(t, f, time.Now())
	ctx := context.Background()

	_, err := x.RecreateOnInbound(ctx, 0, "u1", 1, 1)
	assert.ErrorIs(t, err, ErrRecreateUnsupported)

	_, err = x.RecreateOnInbound(ctx, 2, "ghost", 1, 1)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestXUIRenewAndRevoke(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 3)
	f := &fakeXUI{inbounds: map[int][]xui.ClientConfig{
		7: {{ID: "c-1", Email: "u7", Enable: false, TotalGB: 2 * bytesPerGB, ExpiryTime: expiry.UnixMilli(), SubID: "s7"}},
	}}
	x := newXUIAdapter(t, f, now)
	ctx := context.Background()

	renewed, err := x.RenewUser(ctx, RenewRequest{Username: "u7", AddGB: 3, AddDays: 30})
	require.NoError(t, err)
	assert.Equal(t, "c-1", renewed.UUID)
	assert.True(t, expiry.AddDate(0, 0, 30).Equal(renewed.ExpiresAt))
	assert.True(t, f.inbounds[7][0].Enable)
	assert.Equal(t, 5*bytesPerGB, f.inbounds[7][0].TotalGB)

	require.NoError(t, x.RevokeUser(ctx, "u7"))
	assert.Empty(t, f.inbounds[7])
}

func TestMarzbanAdapter(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	users := map[string]*marzban.User{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		var u marzban.User
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		u.SubscriptionURL = "/sub/token-" + u.Username
		users[u.Username] = &u
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("/api/user/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/user/")
		u, ok := users[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodPut:
			var upd marzban.User
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			u.Expire, u.DataLimit, u.Status = upd.Expire, upd.DataLimit, upd.Status
		case http.MethodDelete:
			delete(users, name)
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewMarzban(marzban.NewClient(srv.URL, "admin", "pw"), srv.URL, logger.Nop())
	m.now = func() time.Time { return now }
	ctx := context.Background()

	created, err := m.CreateUser(ctx, CreateRequest{Username: "m1", TrafficGB: 20, DurationDays: 30})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/sub/token-m1", created.SubscriptionURL)
	assert.Equal(t, "m1", created.ID)

	renewed, err := m.RenewUser(ctx, RenewRequest{Username: "m1", AddGB: 10, AddDays: 30})
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 60).Unix(), renewed.ExpiresAt.Unix())
	assert.Equal(t, 30*bytesPerGB, users["m1"].DataLimit)
	assert.Equal(t, "active", users["m1"].Status)

	_, err = m.RenewUser(ctx, RenewRequest{Username: "ghost", AddDays: 1})
	assert.ErrorIs(t, err, ErrClientNotFound)

	require.NoError(t, m.RevokeUser(ctx, "m1"))
	assert.Empty(t, users)
}

type memPanels struct {
	panels map[int64]*storage.Panel
	gets   int
}

func (m *memPanels) GetPanel(ctx context.Context, id int64) (*storage.Panel, error) {
	m.gets++
	p, ok := m.panels[id]
	if !ok {
		return nil, fmt.Errorf("panel %d not found", id)
	}
	return p, nil
}

func (m *memPanels) AddPanel(ctx context.Context, p *storage.Panel) (int64, error) {
	p.ID = int64(len(m.panels) + 1)
	m.panels[p.ID] = p
	return p.ID, nil
}

func TestRegistry(t *testing.T) {
	store := &memPanels{panels: map[int64]*storage.Panel{}}
	r := NewRegistry(store, logger.Nop())
	ctx := context.Background()

	_, err := r.Register(ctx, &storage.Panel{Name: "bad", PanelType: "hiddify"})
	require.Error(t, err)
	assert.Empty(t, store.panels)

	xuiID, err := r.Register(ctx, &storage.Panel{Name: "de", PanelType: "3x-ui", URL: "http://x"})
	require.NoError(t, err)
	mzID, err := r.Register(ctx, &storage.Panel{Name: "nl", PanelType: "Marzban", URL: "http://m"})
	require.NoError(t, err)

	p, err := r.Get(ctx, xuiID)
	require.NoError(t, err)
	assert.Equal(t, KindXUI, p.Kind())
	_, isRecreator := p.(InboundRecreator)
	assert.True(t, isRecreator)

	p, err = r.Get(ctx, mzID)
	require.NoError(t, err)
	assert.Equal(t, KindMarzban, p.Kind())
	_, isRecreator = p.(InboundRecreator)
	assert.False(t, isRecreator)

	_, err = r.Get(ctx, xuiID)
	require.NoError(t, err)
	assert.Equal(t, 2, store.gets)

	r.Invalidate(xuiID)
	_, err = r.Get(ctx, xuiID)
	require.NoError(t, err)
	assert.Equal(t, 3, store.gets)
}
