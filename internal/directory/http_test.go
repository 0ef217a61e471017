package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classrelay/pkg/types"
)

func TestClient_GetUserByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/u1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(types.User{
				ID:                "u1",
				Name:              "Ada",
				Role:              types.RoleStudent,
				EnrolledCourseIDs: []string{"c1"},
			})
		case "/users/ghost":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	ctx := context.Background()

	user, err := client.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if user == nil || user.Name != "Ada" || !user.IsEnrolledIn("c1") {
		t.Errorf("unexpected user: %+v", user)
	}

	missing, err := client.GetUserByID(ctx, "ghost")
	if err != nil {
		t.Fatalf("lookup of missing user should not error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for 404, got %+v", missing)
	}

	if _, err := client.GetUserByID(ctx, "boom"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 10*time.Millisecond)
	if _, err := client.GetUserByID(context.Background(), "u1"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second)
	if _, err := client.GetUserByID(context.Background(), "u1"); err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
}
