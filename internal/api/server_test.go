package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fruitsalade/mediavault/internal/auth"
	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/storage/local"
	"github.com/fruitsalade/mediavault/internal/thumbnail"
)

func init() {
	logging.InitNop()
}

type testEnv struct {
	handler http.Handler
	auth    *auth.Auth
}

func newTestEnv(t *testing.T, mutate func(*media.Config)) *testEnv {
	t.Helper()
	cfg := media.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := media.NewService(cfg, local.NewWithFs(afero.NewMemMapFs(), true), catalog.NewMemory(),
		media.WithThumbnailOptions(thumbnail.WithMemoryMonitor(thumbnail.StaticMonitor{})))
	if err != nil {
		t.Fatal(err)
	}
	a, err := auth.New("test-secret", "mediavault")
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{handler: NewServer(svc, a).Handler(), auth: a}
}

func (e *testEnv) token(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	tok, _, err := e.auth.IssueToken(sub, roles, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func pngData(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = seed + uint8(i)
	}
	img.Set(0, 0, color.NRGBA{A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if data != nil {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestUploadAndDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "42", "admin")
	data := pngData(t, 1)

	rec := env.do(uploadRequest(t, map[string]string{"dir": "logos"}, "Acme.png", data), tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	created := decode(t, rec)
	if created["path"] != "logos/acme.png" || created["created_by"] != "42" {
		t.Errorf("created = %v", created)
	}
	thumbs, _ := created["thumbnails"].(map[string]interface{})
	if thumbs["64"] != "thumbnails/logos/acme_64.jpg" {
		t.Errorf("thumbnails = %v", created["thumbnails"])
	}

	rec = env.do(uploadRequest(t, map[string]string{"dir": "misc"}, "copy.png", data), tok)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d: %s", rec.Code, rec.Body)
	}
	conflict := decode(t, rec)
	dup, _ := conflict["duplicate"].(map[string]interface{})
	if dup["id"] != created["id"] {
		t.Errorf("duplicate = %v, want id %v", dup, created["id"])
	}
	opts, _ := conflict["options"].(map[string]interface{})
	for _, k := range []string{"replace_existing", "keep_both", "use_existing"} {
		if opts[k] != true {
			t.Errorf("option %s missing: %v", k, opts)
		}
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*media.Config)
		roles  []string
		fields map[string]string
		file   string
		data   []byte
		status int
	}{
		{name: "bad root", fields: map[string]string{"dir": "etc"}, file: "a.png", data: []byte{1}, status: http.StatusUnprocessableEntity},
		{name: "too deep", fields: map[string]string{"dir": "misc/a/b/c/d"}, file: "a.png", data: []byte{1}, status: http.StatusUnprocessableEntity},
		{name: "missing dir", fields: map[string]string{}, file: "a.png", data: []byte{1}, status: http.StatusUnprocessableEntity},
		{name: "missing file", fields: map[string]string{"dir": "misc"}, status: http.StatusUnprocessableEntity},
		{name: "text", fields: map[string]string{"dir": "misc"}, file: "a.txt", data: []byte("plain text"), status: http.StatusUnsupportedMediaType},
		{
			name:   "too large",
			mutate: func(c *media.Config) { c.MaxFileSize = 64 },
			fields: map[string]string{"dir": "misc"}, file: "a.png", data: bytes.Repeat([]byte{0x89}, 200),
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)
			rec := env.do(uploadRequest(t, tt.fields, tt.file, tt.data), env.token(t, "1", "admin"))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestUploadForbiddenCarriesRequiredRoles(t *testing.T) {
	env := newTestEnv(t, func(c *media.Config) { c.EnforceRoleCheck = true })

	rec := env.do(uploadRequest(t, map[string]string{"dir": "logos/brand"}, "a.png", pngData(t, 2)), env.token(t, "9", "viewer"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	roles, _ := body["required_roles"].([]interface{})
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "marketing" || body["root"] != "logos" {
		t.Errorf("body = %v", body)
	}

	rec = env.do(uploadRequest(t, map[string]string{"dir": "logos"}, "a.png", pngData(t, 2)), env.token(t, "9", "marketing"))
	if rec.Code != http.StatusCreated {
		t.Errorf("marketing upload status = %d: %s", rec.Code, rec.Body)
	}
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/api/media", "/api/media/directories"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d", path, rec.Code)
		}
	}
}

func TestListAndDirectories(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "1")

	for i, dir := range []string{"logos", "logos", "misc"} {
		rec := env.do(uploadRequest(t, map[string]string{"dir": dir}, "file.png", pngData(t, uint8(10*i))), tok)
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed upload %d = %d: %s", i, rec.Code, rec.Body)
		}
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/media?dir=logos/&per_page=1", nil), tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", rec.Code, rec.Body)
	}
	page := decode(t, rec)
	items, _ := page["data"].([]interface{})
	if page["total"] != float64(2) || len(items) != 1 || page["per_page"] != float64(1) {
		t.Errorf("page = %v", page)
	}

	for _, bad := range []string{"per_page=0", "per_page=101", "page=0", "page=x", "q=" + strings.Repeat("a", 256)} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/media?"+bad, nil), tok)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s = %d, want 422", bad, rec.Code)
		}
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/media/directories", nil), tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("directories = %d", rec.Code)
	}
	dirs := decode(t, rec)
	roots, _ := dirs["roots"].([]interface{})
	if len(roots) != 5 || roots[0] != "logos" {
		t.Errorf("roots = %v", roots)
	}
	cfg, _ := dirs["config"].(map[string]interface{})
	if cfg["allowed_folder_nest"] != float64(3) {
		t.Errorf("config = %v", cfg)
	}
}

func TestCreateFolder(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "1", "admin")

	req := httptest.NewRequest(http.MethodPost, "/api/media/folders",
		strings.NewReader(`{"parent_dir":"logos","name":"Summer 2025!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req, tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["path"] != "logos/Summer-2025" || body["name"] != "Summer-2025" {
		t.Errorf("body = %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/media/folders",
		strings.NewReader("parent_dir=logos/a/b/c&name=d"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(req, tok); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("too deep folder = %d", rec.Code)
	}
}
