package drive

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

type fakeDrive struct {
	tokenRequests int
	files         map[string]string // id -> content
	names         map[string]string // name -> id
}

func newFakeDriveServer(t *testing.T) (*httptest.Server, *fakeDrive) {
	t.Helper()
	fd := &fakeDrive{files: map[string]string{}, names: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("assertion") == "" {
			http.Error(w, "missing assertion", http.StatusBadRequest)
			return
		}
		fd.tokenRequests++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("GET /drive/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		files := []map[string]string{}
		for name, id := range fd.names {
			if strings.Contains(q, "'"+name+"'") {
				files = append(files, map[string]string{"id": id, "name": name})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})
	})
	mux.HandleFunc("GET /drive/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		content, ok := fd.files[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, content)
	})
	mux.HandleFunc("POST /upload/files", func(w http.ResponseWriter, r *http.Request) {
		meta, media := readMultipart(t, r)
		id := "file-1"
		fd.names[meta["name"].(string)] = id
		fd.files[id] = media
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	})
	mux.HandleFunc("PATCH /upload/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := fd.files[id]; !ok {
			http.NotFound(w, r)
			return
		}
		_, media := readMultipart(t, r)
		fd.files[id] = media
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, fd
}

func readMultipart(t *testing.T, r *http.Request) (map[string]any, string) {
	t.Helper()
	reader, err := r.MultipartReader()
	if err != nil {
		t.Fatalf("multipart reader: %v", err)
	}
	metaPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("metadata part: %v", err)
	}
	meta := map[string]any{}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	mediaPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("media part: %v", err)
	}
	media, err := io.ReadAll(mediaPart)
	if err != nil {
		t.Fatalf("read media: %v", err)
	}
	return meta, string(media)
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(writeTestKey(t), "svc@example.iam.gserviceaccount.com",
		WithEndpoints(server.URL+"/token", server.URL+"/drive", server.URL+"/upload"),
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestAuthenticateReturnsToken(t *testing.T) {
	server, _ := newFakeDriveServer(t)
	client := newTestClient(t, server)

	token, err := client.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token.AccessToken != "tok" {
		t.Fatalf("token = %q, want tok", token.AccessToken)
	}
	if !token.Expiry.After(client.now()) {
		t.Fatalf("expiry not in the future: %v", token.Expiry)
	}
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	server, fd := newFakeDriveServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	if _, err := client.Upload(ctx, "gem_backup.json", "", "application/json", []byte("{}")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := client.FindFileByName(ctx, "gem_backup.json", ""); err != nil {
		t.Fatalf("find: %v", err)
	}
	if fd.tokenRequests != 1 {
		t.Fatalf("token requests = %d, want 1", fd.tokenRequests)
	}
}

func TestUploadUpdateDownloadRoundTrip(t *testing.T) {
	server, _ := newFakeDriveServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	id, err := client.Upload(ctx, "gem_backup.json", "folder-1", "application/json", []byte(`{"v":1}`))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := client.Update(ctx, id, "application/json", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	data, err := client.Download(ctx, id)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Fatalf("downloaded %q", data)
	}

	found, err := client.FindFileByName(ctx, "gem_backup.json", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != id {
		t.Fatalf("found %q, want %q", found, id)
	}
}

func TestFindFileByNameNotFound(t *testing.T) {
	server, _ := newFakeDriveServer(t)
	client := newTestClient(t, server)

	if _, err := client.FindFileByName(context.Background(), "missing.json", ""); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}
