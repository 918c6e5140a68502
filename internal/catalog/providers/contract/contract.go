package contract

import (
	"context"
	"testing"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
)

// FetchTest defines a successful fetch a Fetcher implementation must serve.
type FetchTest struct {
	Name         string
	Locator      string
	ExpectedName string
	ValidateFunc func(record models.DetailRecord) error
}

// ListTest defines a listing a Lister implementation must serve.
type ListTest struct {
	Name          string
	Category      string
	ExpectedCount int
}

// ErrorTest validates that failures follow the taxonomy.
type ErrorTest struct {
	Name          string
	Locator       string
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

// Suite is a collection of contract tests for one provider.
type Suite struct {
	Fetcher providers.Fetcher
	Lister  providers.Lister
	Fetches []FetchTest
	Lists   []ListTest
	Errors  []ErrorTest
}

// Run executes all contract tests in the suite
func (s *Suite) Run(t *testing.T) {
	t.Helper()
	for _, test := range s.Fetches {
		t.Run("fetch/"+test.Name, func(t *testing.T) {
			record, err := s.Fetcher.Fetch(context.Background(), test.Locator)
			if err != nil {
				t.Fatalf("fetch %s failed: %v", test.Locator, err)
			}
			if record.Name == "" {
				t.Fatal("record has no name")
			}
			if test.ExpectedName != "" && record.Name != test.ExpectedName {
				t.Errorf("expected name %q, got %q", test.ExpectedName, record.Name)
			}
			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(record); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}

	for _, test := range s.Lists {
		t.Run("list/"+test.Name, func(t *testing.T) {
			refs, err := s.Lister.List(context.Background(), test.Category)
			if err != nil {
				t.Fatalf("list %s failed: %v", test.Category, err)
			}
			if len(refs) != test.ExpectedCount {
				t.Errorf("expected %d references, got %d", test.ExpectedCount, len(refs))
			}
			for i, ref := range refs {
				if ref.Locator == "" {
					t.Errorf("reference %d (%q) has no locator", i, ref.Name)
				}
			}
		})
	}

	for _, test := range s.Errors {
		t.Run("error/"+test.Name, func(t *testing.T) {
			_, err := s.Fetcher.Fetch(context.Background(), test.Locator)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if category := providers.GetCategory(err); category != test.ExpectedError {
				t.Errorf("expected error category %s, got %s", test.ExpectedError, category)
			}
			if retry := providers.IsRetryable(err); retry != test.ExpectedRetry {
				t.Errorf("expected retryable=%v, got %v", test.ExpectedRetry, retry)
			}
		})
	}
}
