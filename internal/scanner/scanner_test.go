package scanner

import (
	"context"
	"testing"

	"github.com/atopofconscience/mehfil/internal/domain"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(_ context.Context, _ Request) ([]domain.RawRecord, error) {
	return []domain.RawRecord{{"title": s.name}}, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "ticketing"})
	reg.Register(&stubAdapter{name: "citycalendar"})

	adapter, err := reg.Resolve("ticketing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Name() != "ticketing" {
		t.Errorf("expected ticketing adapter, got %q", adapter.Name())
	}

	records, err := adapter.Fetch(context.Background(), Request{Source: "ticketing"})
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(records) != 1 || records[0]["title"] != "ticketing" {
		t.Errorf("unexpected records: %v", records)
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	if _, err := reg.Resolve("groups"); err == nil {
		t.Fatal("expected an error for an unregistered adapter")
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	first := &stubAdapter{name: "aggregator"}
	second := &stubAdapter{name: "aggregator"}
	reg.Register(first)
	reg.Register(second)

	adapter, err := reg.Resolve("aggregator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter != Adapter(second) {
		t.Error("expected the later registration to win")
	}
}
