package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testDynamics swaps the oauth2 transport for a plain client so the test
// server never sees a token exchange.
func testDynamics(t *testing.T, handler http.HandlerFunc) *Dynamics {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Dynamics{
		resourceURL: srv.URL,
		apiVersion:  "v9.2",
		http:        srv.Client(),
	}
}

func TestDynamicsCreateLead(t *testing.T) {
	d := testDynamics(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/data/v9.2/leads" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("OData-Version"); got != "4.0" {
			t.Errorf("OData-Version = %q", got)
		}

		var payload dynamicsLead
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.FirstName != "Ada" || payload.LastName != "Lovelace" {
			t.Errorf("name = %q %q", payload.FirstName, payload.LastName)
		}
		if payload.MobilePhone != "+15550100" || payload.Telephone1 != "+15550100" {
			t.Errorf("phones = %q / %q", payload.MobilePhone, payload.Telephone1)
		}

		w.Header().Set("OData-EntityId",
			"https://org.crm.dynamics.com/api/data/v9.2/leads(11111111-2222-3333-4444-555555555555)")
		w.WriteHeader(http.StatusNoContent)
	})

	record, err := d.CreateLead(context.Background(), Lead{
		Name: "Ada Lovelace", Phone: "+15550100", Intent: "bulk order",
	})
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if record.LeadID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("LeadID = %q", record.LeadID)
	}
	if record.Source != "dynamics365" {
		t.Errorf("Source = %q", record.Source)
	}
}

func TestDynamicsCreateLeadBodyFallback(t *testing.T) {
	d := testDynamics(t, func(w http.ResponseWriter, r *http.Request) {
		// No OData-EntityId header: the id comes from the body.
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"leadid": "guid-from-body"})
	})

	record, err := d.CreateLead(context.Background(), Lead{Name: "Ada", Phone: "+1", Intent: "x"})
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if record.LeadID != "guid-from-body" {
		t.Errorf("LeadID = %q", record.LeadID)
	}
}

func TestDynamicsCreateLeadFailure(t *testing.T) {
	d := testDynamics(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"insufficient privileges"}}`))
	})

	if _, err := d.CreateLead(context.Background(), Lead{Name: "Ada", Phone: "+1", Intent: "x"}); err == nil {
		t.Error("CreateLead() error = nil, want failure")
	}
}
