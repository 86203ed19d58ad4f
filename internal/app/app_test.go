package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/config"
	"cs2kz-api/internal/model"
	"cs2kz-api/internal/store/storetest"
)

const (
	adminID    uint64 = 76561198000000001
	operatorID uint64 = 76561198000000002
	playerID   uint64 = 76561198000000003
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	t      *testing.T
	state  *State
	router *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Config{
		DatabasePath:           filepath.Join(dir, "kz.db"),
		JWTSecret:              "app-test-secret-0123456789abcdef",
		ServerTokenTTL:         15 * time.Minute,
		SessionTTL:             time.Hour,
		JanitorInterval:        time.Hour,
		BootstrapAdminID:       adminID,
		BootstrapAdminPassword: "hunter2",
	}

	s, err := New(cfg, storetest.Logger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	players := []model.Player{
		{ID: operatorID, Name: "operator", Permissions: model.RoleServerManager.Permissions(), Password: "pw", CreatedOn: now},
		{ID: playerID, Name: "cheater", CreatedOn: now},
	}
	if err := s.DB.Create(&players).Error; err != nil {
		t.Fatalf("seed players: %v", err)
	}

	return &testApp{t: t, state: s, router: s.Router()}
}

func (a *testApp) do(method, path string, body any, cookie *http.Cookie, bearer string) *httptest.ResponseRecorder {
	a.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) login(steamID uint64, password string) *http.Cookie {
	a.t.Helper()

	w := a.do(http.MethodPost, "/auth/login", gin.H{"steam_id": steamID, "password": password}, nil, "")
	if w.Code != http.StatusOK {
		a.t.Fatalf("login %d: status %d: %s", steamID, w.Code, w.Body)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	a.t.Fatalf("login %d: no session cookie", steamID)
	return nil
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body, err)
	}
	return v
}

func (a *testApp) auditCount() int64 {
	a.t.Helper()

	var n int64
	if err := a.state.DB.Model(&model.AuditEntry{}).Count(&n).Error; err != nil {
		a.t.Fatalf("count audit entries: %v", err)
	}
	return n
}

func TestBanLifecycle(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	cookie := a.login(adminID, "hunter2")

	w := a.do(http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "auto_bhop"}, cookie, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body)
	}
	banID := decode[struct {
		BanID uint64 `json:"ban_id"`
	}](t, w).BanID
	path := fmt.Sprintf("/bans/%d", banID)

	if w := a.do(http.MethodPatch, path, gin.H{"reason": "macro"}, cookie, ""); w.Code != http.StatusNoContent {
		t.Fatalf("patch: status %d: %s", w.Code, w.Body)
	}

	w = a.do(http.MethodDelete, path, gin.H{"reason": "appeal accepted"}, cookie, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("revert: status %d: %s", w.Code, w.Body)
	}
	unbanID := decode[struct {
		UnbanID uint64 `json:"unban_id"`
	}](t, w).UnbanID

	type conflict struct {
		UnbanID uint64 `json:"unban_id"`
	}
	for _, tc := range []struct {
		method string
		body   gin.H
	}{
		{http.MethodDelete, gin.H{"reason": "again"}},
		{http.MethodPatch, gin.H{"reason": "edited after revert"}},
	} {
		w := a.do(tc.method, path, tc.body, cookie, "")
		if w.Code != http.StatusConflict {
			t.Fatalf("%s after revert: status %d: %s", tc.method, w.Code, w.Body)
		}
		if got := decode[conflict](t, w).UnbanID; got != unbanID {
			t.Errorf("%s conflict names unban %d, want %d", tc.method, got, unbanID)
		}
	}

	w = a.do(http.MethodGet, path, nil, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d: %s", w.Code, w.Body)
	}
	got := decode[struct {
		model.Ban
		State string `json:"state"`
	}](t, w)
	if got.Reason != "macro" || got.Unban == nil || got.Unban.ID != unbanID {
		t.Errorf("unexpected ban after lifecycle: %+v", got)
	}
	if got.State != "reverted" {
		t.Errorf("state = %q, want reverted", got.State)
	}

	// created, updated, reverted
	if n := a.auditCount(); n != 3 {
		t.Errorf("audit entries = %d, want 3", n)
	}
}

func TestInsufficientPermissionsLeaveNoTrace(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	admin := a.login(adminID, "hunter2")
	operator := a.login(operatorID, "pw")

	w := a.do(http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "wallhack"}, admin, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body)
	}
	banID := decode[struct {
		BanID uint64 `json:"ban_id"`
	}](t, w).BanID
	before := a.auditCount()

	path := fmt.Sprintf("/bans/%d", banID)
	type tcase struct {
		method string
		path   string
		body   gin.H
	}
	tests := map[string]tcase{
		"patch":  {http.MethodPatch, path, gin.H{"reason": "nothing"}},
		"revert": {http.MethodDelete, path, gin.H{"reason": "nothing"}},
		"create": {http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "nothing"}},
		"admins": {http.MethodPut, fmt.Sprintf("/admins/%d", operatorID), gin.H{"roles": []string{"superadmin"}}},
	}
	for name, tc := range tests {
		w := a.do(tc.method, tc.path, tc.body, operator, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, w.Code)
		}
		if body := w.Body.String(); body != `{"error":"unauthorized"}` {
			t.Errorf("%s: body %s", name, body)
		}
	}

	var b model.Ban
	if err := a.state.DB.Preload("Unban").First(&b, banID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if b.Reason != "wallhack" || b.Unban != nil {
		t.Errorf("ban was mutated: %+v", b)
	}
	if n := a.auditCount(); n != before {
		t.Errorf("audit entries = %d, want %d", n, before)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	cookie := a.login(adminID, "hunter2")

	if w := a.do(http.MethodPost, "/auth/logout", nil, cookie, ""); w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d: %s", w.Code, w.Body)
	}
	w := a.do(http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "late"}, cookie, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("request with revoked cookie: status %d, want 401", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	w := a.do(http.MethodPost, "/auth/login", gin.H{"steam_id": adminID, "password": "wrong"}, nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("failed login set a cookie")
	}
}

func TestGameServerFlow(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	cookie := a.login(operatorID, "pw")

	w := a.do(http.MethodPost, "/servers", gin.H{"name": "kz-eu", "host": "10.0.0.1", "port": 27015, "owner_id": operatorID}, cookie, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create server: status %d: %s", w.Code, w.Body)
	}
	created := decode[struct {
		ServerID   uint   `json:"server_id"`
		RefreshKey string `json:"refresh_key"`
	}](t, w)

	// A plugin built from an untagged checkout reports version 0.
	if w := a.do(http.MethodPost, "/auth/servers/token", gin.H{"refresh_key": created.RefreshKey, "plugin_version": 0}, nil, ""); w.Code != http.StatusCreated {
		t.Fatalf("token for version 0: status %d: %s", w.Code, w.Body)
	}

	w = a.do(http.MethodPost, "/auth/servers/token", gin.H{"refresh_key": created.RefreshKey, "plugin_version": 7}, nil, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("token: status %d: %s", w.Code, w.Body)
	}
	token := decode[struct {
		AccessToken string `json:"access_token"`
	}](t, w).AccessToken

	if w := a.do(http.MethodPost, "/servers/heartbeat", gin.H{"plugin_version": 7}, nil, token); w.Code != http.StatusNoContent {
		t.Fatalf("heartbeat: status %d: %s", w.Code, w.Body)
	}

	var server model.Server
	if err := a.state.DB.First(&server, created.ServerID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if server.PluginVersion != 7 || server.LastSeenOn == nil {
		t.Errorf("heartbeat not recorded: %+v", server)
	}

	path := fmt.Sprintf("/servers/%d/key", created.ServerID)
	if w := a.do(http.MethodDelete, path, nil, cookie, ""); w.Code != http.StatusNoContent {
		t.Fatalf("revoke: status %d: %s", w.Code, w.Body)
	}
	if w := a.do(http.MethodPost, "/servers/heartbeat", gin.H{"plugin_version": 7}, nil, token); w.Code != http.StatusUnauthorized {
		t.Errorf("heartbeat after revoke: status %d, want 401", w.Code)
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	if err := seedAdmin(a.state.DB, a.state.Config, storetest.Logger()); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}

	var admin model.Player
	if err := a.state.DB.First(&admin, adminID).Error; err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if admin.Permissions != model.PermissionAll {
		t.Errorf("admin permissions = %v", admin.Permissions)
	}
	if !admin.CheckPassword("hunter2") {
		t.Error("bootstrap password does not verify")
	}
}

func TestRemovingRoleEndsSessions(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	admin := a.login(adminID, "hunter2")
	adminPath := fmt.Sprintf("/admins/%d", operatorID)

	if w := a.do(http.MethodPut, adminPath, gin.H{"roles": []string{"servers", "bans"}}, admin, ""); w.Code != http.StatusNoContent {
		t.Fatalf("grant: status %d: %s", w.Code, w.Body)
	}
	operator := a.login(operatorID, "pw")

	// Adding a role keeps existing sessions.
	if w := a.do(http.MethodPut, adminPath, gin.H{"roles": []string{"servers", "bans", "maps"}}, admin, ""); w.Code != http.StatusNoContent {
		t.Fatalf("grant maps: status %d: %s", w.Code, w.Body)
	}
	w := a.do(http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "strafe hack"}, operator, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create before demotion: status %d: %s", w.Code, w.Body)
	}
	banID := decode[struct {
		BanID uint64 `json:"ban_id"`
	}](t, w).BanID

	if w := a.do(http.MethodPut, adminPath, gin.H{"roles": []string{}}, admin, ""); w.Code != http.StatusNoContent {
		t.Fatalf("demote: status %d: %s", w.Code, w.Body)
	}

	w = a.do(http.MethodDelete, fmt.Sprintf("/bans/%d", banID), gin.H{"reason": "self-pardon"}, operator, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revert by demoted operator: status %d: %s", w.Code, w.Body)
	}

	var unbans int64
	if err := a.state.DB.Model(&model.Unban{}).Where("ban_id = ?", banID).Count(&unbans).Error; err != nil {
		t.Fatalf("count unbans: %v", err)
	}
	if unbans != 0 {
		t.Errorf("demoted operator reverted the ban")
	}

	// Only the target is logged out.
	if w := a.do(http.MethodPut, adminPath, gin.H{"roles": []string{"servers"}}, admin, ""); w.Code != http.StatusNoContent {
		t.Errorf("admin session after demoting someone else: status %d", w.Code)
	}
}

func TestAuditLog(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	admin := a.login(adminID, "hunter2")
	operator := a.login(operatorID, "pw")

	if w := a.do(http.MethodPost, "/bans", gin.H{"player_id": playerID, "reason": "wallhack"}, admin, ""); w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body)
	}

	if w := a.do(http.MethodGet, "/audit", nil, operator, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("audit log without admins permission: status %d, want 401", w.Code)
	}

	w := a.do(http.MethodGet, "/audit?event=ban.created", nil, admin, "")
	if w.Code != http.StatusOK {
		t.Fatalf("audit log: status %d: %s", w.Code, w.Body)
	}
	type entry struct {
		Event     string   `json:"event"`
		ActorID   uint64   `json:"actor_id"`
		TargetIDs []uint64 `json:"target_ids"`
	}
	got := decode[struct {
		Results []entry `json:"results"`
	}](t, w).Results
	if len(got) != 1 || got[0].Event != "ban.created" || got[0].ActorID != adminID || len(got[0].TargetIDs) != 1 {
		t.Errorf("unexpected audit entries: %+v", got)
	}
}
