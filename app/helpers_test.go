package app

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"mmmstudio/adapters/api"
	"mmmstudio/domain/edit"
	"mmmstudio/internal/testkit"
)

// MockJournal records journal calls
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Record(ctx context.Context, entry edit.JournalEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockJournal) History(ctx context.Context, model string, limit int) ([]edit.JournalEntry, error) {
	args := m.Called(ctx, model, limit)
	entries, _ := args.Get(0).([]edit.JournalEntry)
	return entries, args.Error(1)
}

func outcome(o edit.Outcome) any {
	return mock.MatchedBy(func(e edit.JournalEntry) bool { return e.Outcome == o })
}

type harness struct {
	kit      *testkit.TestKit
	server   *httptest.Server
	client   *api.Client
	registry *ModelRegistry
	journal  *MockJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kit := testkit.NewTestKit()
	server := kit.Start()
	t.Cleanup(server.Close)

	client := kit.Client(server, nil)
	return &harness{
		kit:      kit,
		server:   server,
		client:   client,
		registry: NewModelRegistry(client, nil),
		journal:  &MockJournal{},
	}
}

func (h *harness) engine(model string) *EditTransactionService {
	return NewEditTransactionService(model, h.client, h.registry, h.journal, nil)
}
