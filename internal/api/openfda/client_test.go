package openfda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/testutil"
)

func TestClient_SearchGeneric(t *testing.T) {
	client := NewClient(Config{}, WithHTTPClient(testutil.VCRHTTPClient(t, "label_aspirin")))

	label, err := client.SearchGeneric(context.Background(), "aspirin")
	if err != nil {
		t.Fatalf("SearchGeneric() error = %v", err)
	}

	if label.GenericName != "ASPIRIN" {
		t.Errorf("GenericName = %q", label.GenericName)
	}
	if !strings.HasPrefix(label.Warnings, "Reye's syndrome") {
		t.Errorf("Warnings = %q", label.Warnings)
	}
	if label.BoxedWarning != "" {
		t.Errorf("BoxedWarning = %q, want empty", label.BoxedWarning)
	}
}

func TestClient_SearchGeneric_BoxedWarningTable(t *testing.T) {
	client := NewClient(Config{}, WithHTTPClient(testutil.VCRHTTPClient(t, "label_warfarin")))

	label, err := client.SearchGeneric(context.Background(), "warfarin")
	if err != nil {
		t.Fatalf("SearchGeneric() error = %v", err)
	}

	want := "WARNING | BLEEDING RISK; Warfarin can cause major or fatal bleeding. | Monitor INR regularly."
	if label.BoxedWarning != want {
		t.Errorf("BoxedWarning = %q, want %q", label.BoxedWarning, want)
	}
	if !strings.HasPrefix(label.Warnings, "Tissue necrosis") {
		t.Errorf("Warnings = %q, want warnings_and_cautions fallback", label.Warnings)
	}
}

func TestClient_GenericNotFoundThenBrand(t *testing.T) {
	client := NewClient(Config{}, WithHTTPClient(testutil.VCRHTTPClient(t, "label_gtn_fallback")))
	ctx := context.Background()

	_, err := client.SearchGeneric(ctx, "nitroglycerin")
	if !domain.IsType(err, domain.ErrorTypeNotFound) {
		t.Fatalf("SearchGeneric() error = %v, want not found", err)
	}
	if !strings.Contains(err.Error(), "No matches found!") {
		t.Errorf("error = %v, want API message", err)
	}

	label, err := client.SearchBrand(ctx, "gtn")
	if err != nil {
		t.Fatalf("SearchBrand() error = %v", err)
	}
	if label.BrandName != "GTN" {
		t.Errorf("BrandName = %q", label.BrandName)
	}
}

func TestClient_EmptyResults(t *testing.T) {
	client := NewClient(Config{}, WithHTTPClient(testutil.VCRHTTPClient(t, "label_empty")))

	_, err := client.SearchBrand(context.Background(), "digoxin")
	if !domain.IsType(err, domain.ErrorTypeNotFound) {
		t.Fatalf("SearchBrand() error = %v, want not found", err)
	}
}

func TestClient_APIKeyAndTimeout(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		if r.URL.Query().Get("search") == `openfda.generic_name:"morphine"` {
			time.Sleep(200 * time.Millisecond)
		}
		w.Write([]byte(`{"results":[{"warnings":["ok"]}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "fda-key", Timeout: 50 * time.Millisecond},
		WithHTTPClient(server.Client()))

	if _, err := client.SearchGeneric(context.Background(), "heparin"); err != nil {
		t.Fatalf("SearchGeneric() error = %v", err)
	}
	if gotKey != "fda-key" {
		t.Errorf("api_key = %q", gotKey)
	}

	if _, err := client.SearchGeneric(context.Background(), "morphine"); err == nil {
		t.Fatal("expected slow lookup to time out")
	}
}

func TestFlattenTable(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "rows and cells",
			html: "<table><tr><td>Dose</td><td> 10 mg </td></tr><tr><td>Max</td><td>40 mg</td></tr></table>",
			want: "Dose | 10 mg; Max | 40 mg",
		},
		{
			name: "empty cells skipped",
			html: "<table><tr><td></td><td>only</td></tr></table>",
			want: "only",
		},
		{
			name: "plain markup",
			html: "<p>Use with\n   caution</p>",
			want: "Use with caution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flattenTable(tt.html); got != tt.want {
				t.Errorf("flattenTable() = %q, want %q", got, tt.want)
			}
		})
	}
}
