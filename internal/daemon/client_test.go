package daemon

import (
	"context"
	"encoding/json/v2"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, RequestsPerSecond: 1000}, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://daemon"}, nil)
	assert.Error(t, err)
}

func TestClient_GetDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/documents", r.URL.Path)
		assert.Equal(t, "z6Mk", r.URL.Query().Get("account"))
		if r.URL.Query().Get("path") == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"account":"z6Mk","path":"/blog/hello","version":"bafy1","extra":true}`))
	})

	doc, err := client.GetDocument(context.Background(), "z6Mk", "/blog/hello")
	require.NoError(t, err)
	assert.Equal(t, "bafy1", doc.Version)

	_, err = client.GetDocument(context.Background(), "z6Mk", "/missing")
	require.ErrorIs(t, err, ErrNotFound)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "getDocument", derr.Op)
	assert.Equal(t, "/missing", derr.Path)
}

func TestClient_CreateDocumentChange(t *testing.T) {
	var got CreateDocumentChangeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/documents/changes", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	})

	req := CreateDocumentChangeRequest{
		SigningKeyName: "main",
		Account:        "z6Mk",
		Path:           "/blog/hello",
		BaseVersion:    "bafy1",
		Changes: []DocumentChange{
			{SetMetadata: &SetMetadata{Key: "name", Value: "Hello"}},
			{MoveBlock: &MoveBlock{BlockID: "b1"}},
			{ReplaceBlock: &blocks.Block{ID: "b1", Type: blocks.TypeParagraph, Text: "hi"}},
		},
	}
	require.NoError(t, client.CreateDocumentChange(context.Background(), req))

	assert.Equal(t, "main", got.SigningKeyName)
	assert.Equal(t, "bafy1", got.BaseVersion)
	require.Len(t, got.Changes, 3)
	assert.Equal(t, "name", got.Changes[0].SetMetadata.Key)
	assert.Nil(t, got.Changes[0].MoveBlock)
	assert.Equal(t, "b1", got.Changes[1].MoveBlock.BlockID)
	assert.Equal(t, "hi", got.Changes[2].ReplaceBlock.Text)
}

func TestClient_Keys(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/keys":
			_, _ = w.Write([]byte(`{"keys":[{"name":"main","publicKey":"z6MkMain"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/keys":
			var req struct {
				Mnemonic []string `json:"mnemonic"`
				Name     string   `json:"name"`
			}
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, []string{"a", "b"}, req.Mnemonic)
			_, _ = w.Write([]byte(`{"publicKey":"z6MkAlice"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/keys/mnemonic":
			_, _ = w.Write([]byte(`{"mnemonic":["w1","w2","w3"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	keys, err := client.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{{Name: "main", PublicKey: "z6MkMain"}}, keys)

	key, err := client.RegisterKey(ctx, []string{"a", "b"}, "alice-12345678")
	require.NoError(t, err)
	assert.Equal(t, "alice-12345678", key.Name)
	assert.Equal(t, "z6MkAlice", key.PublicKey)

	words, err := client.GenMnemonic(ctx)
	require.NoError(t, err)
	assert.Len(t, words, 3)
}

func TestClient_Capabilities(t *testing.T) {
	var created CreateCapabilityRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			assert.Equal(t, "/blog/hello", r.URL.Query().Get("path"))
			_, _ = w.Write([]byte(`{"capabilities":[{"delegate":"z6MkBob","role":"WRITER"}]}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &created))
	})
	ctx := context.Background()

	caps, err := client.ListCapabilities(ctx, "z6Mk", "/blog/hello")
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, RoleWriter, caps[0].Role)

	require.NoError(t, client.CreateCapability(ctx, CreateCapabilityRequest{
		Account: "z6Mk", Delegate: "z6MkAlice", Role: RoleWriter, Path: "/blog/hello", SigningKeyName: "main",
	}))
	assert.Equal(t, "z6MkAlice", created.Delegate)
	assert.Equal(t, RoleWriter, created.Role)
}

func TestClient_UploadBlob(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body)
		_, _ = w.Write([]byte(`{"cid":"bafkimg"}`))
	})

	cid, err := client.UploadBlob(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "bafkimg", cid)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"conflict", http.StatusConflict, ErrConflict},
		{"server error", http.StatusBadGateway, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			})
			err := client.CreateDocumentChange(context.Background(), CreateDocumentChangeRequest{Path: "/x"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPathQuery(t *testing.T) {
	assert.Equal(t, "", PathQuery(nil))
	assert.Equal(t, "/blog", PathQuery([]string{"blog"}))
	assert.Equal(t, "/blog/posts/hello", PathQuery([]string{"blog", "posts", "hello"}))
}
