package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testOdoo(t *testing.T, handler http.HandlerFunc) *Odoo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	odoo := NewOdoo(srv.URL, "odookey")
	odoo.http = srv.Client()
	return odoo
}

func TestOdooCreateLead(t *testing.T) {
	odoo := testOdoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/crm.lead" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer odookey" {
			t.Errorf("Authorization = %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["contact_name"] != "Ada Lovelace" {
			t.Errorf("contact_name = %v", payload["contact_name"])
		}
		if payload["phone"] != "+15550100" || payload["mobile"] != "+15550100" {
			t.Errorf("phone fields = %v / %v", payload["phone"], payload["mobile"])
		}
		if payload["type"] != "lead" {
			t.Errorf("type = %v", payload["type"])
		}

		json.NewEncoder(w).Encode(map[string]any{"id": 42})
	})

	record, err := odoo.CreateLead(context.Background(), Lead{
		Name: "Ada Lovelace", Phone: "+15550100", Intent: "marine kit",
	})
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if record.LeadID != "42" || record.Source != "odoo" {
		t.Errorf("record = %+v", record)
	}
}

func TestOdooAddLeadNote(t *testing.T) {
	odoo := testOdoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mail.message" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		// Numeric ids must travel as numbers.
		if payload["res_id"] != float64(42) {
			t.Errorf("res_id = %v (%T), want 42", payload["res_id"], payload["res_id"])
		}
		if payload["model"] != "crm.lead" || payload["subtype_xmlid"] != "mail.mt_note" {
			t.Errorf("payload = %v", payload)
		}
		w.Write([]byte(`{"id": 1}`))
	})

	if err := odoo.AddLeadNote(context.Background(), "42", "<p>summary</p>"); err != nil {
		t.Fatalf("AddLeadNote() error = %v", err)
	}
}

func TestOdooAddLeadNoteEmptyID(t *testing.T) {
	called := false
	odoo := testOdoo(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if err := odoo.AddLeadNote(context.Background(), "", "<p>summary</p>"); err != nil {
		t.Fatalf("AddLeadNote() error = %v", err)
	}
	if called {
		t.Error("note posted despite missing lead id")
	}
}

func TestOdooCreateLeadError(t *testing.T) {
	odoo := testOdoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	})

	if _, err := odoo.CreateLead(context.Background(), Lead{Name: "x", Phone: "y", Intent: "z"}); err == nil {
		t.Error("CreateLead() error = nil, want failure")
	}
}
