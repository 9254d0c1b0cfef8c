package store

import (
	"fmt"
	"sync"
	"testing"

	smimecheck "github.com/mseverin/go-smimecheck"
)

func testResult(mailID string, code smimecheck.Code) *smimecheck.VerificationResult {
	return &smimecheck.VerificationResult{
		MailID:  mailID,
		Success: code == smimecheck.VerificationOK,
		Code:    code,
		Message: "test verdict",
	}
}

func TestInMemoryStore_SaveAndGet(t *testing.T) {
	s := NewInMemoryStore()

	if err := s.Save(testResult("mail-1", smimecheck.VerificationOK)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get("mail-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for a saved result")
	}
	if got.Code != smimecheck.VerificationOK {
		t.Errorf("Code = %s, want VERIFICATION_OK", got.Code)
	}

	missing, err := s.Get("unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Get returned %+v for an unknown id, want nil", missing)
	}
}

func TestInMemoryStore_SaveReplaces(t *testing.T) {
	s := NewInMemoryStore()

	s.Save(testResult("mail-1", smimecheck.CannotVerify))
	s.Save(testResult("mail-1", smimecheck.FraudWarning))

	got, _ := s.Get("mail-1")
	if got.Code != smimecheck.FraudWarning {
		t.Errorf("Code = %s after replace, want FRAUD_WARNING", got.Code)
	}

	results, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("List returned %d results, want 1", len(results))
	}
}

func TestInMemoryStore_ListOrder(t *testing.T) {
	s := NewInMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		s.Save(testResult(id, smimecheck.CannotVerify))
	}

	results, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("List returned %d results, want 3", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].MailID != want {
			t.Errorf("results[%d].MailID = %q, want %q", i, results[i].MailID, want)
		}
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	s.Save(testResult("mail-1", smimecheck.VerificationOK))
	s.Save(testResult("mail-2", smimecheck.FraudWarning))

	if err := s.Delete("mail-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := s.Get("mail-1"); got != nil {
		t.Error("deleted result still present")
	}
	results, _ := s.List()
	if len(results) != 1 || results[0].MailID != "mail-2" {
		t.Errorf("List after delete = %+v", results)
	}

	if err := s.Delete("unknown"); err != nil {
		t.Errorf("Delete of unknown id failed: %v", err)
	}
}

// Stored verdicts must not change when the caller mutates what it saved or
// what it got back.
func TestInMemoryStore_Isolation(t *testing.T) {
	s := NewInMemoryStore()

	original := testResult("mail-1", smimecheck.VerificationOK)
	s.Save(original)
	original.Code = smimecheck.FraudWarning

	got, _ := s.Get("mail-1")
	if got.Code != smimecheck.VerificationOK {
		t.Error("mutating the saved value changed the stored verdict")
	}

	got.Code = smimecheck.FraudWarning
	again, _ := s.Get("mail-1")
	if again.Code != smimecheck.VerificationOK {
		t.Error("mutating a retrieved value changed the stored verdict")
	}
}

func TestInMemoryStore_Close(t *testing.T) {
	s := NewInMemoryStore()
	s.Save(testResult("mail-1", smimecheck.VerificationOK))

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got, _ := s.Get("mail-1"); got != nil {
		t.Error("store still holds results after Close")
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("mail-%d-%d", w, i)
				if err := s.Save(testResult(id, smimecheck.CannotVerify)); err != nil {
					t.Errorf("Save failed: %v", err)
				}
				if _, err := s.Get(id); err != nil {
					t.Errorf("Get failed: %v", err)
				}
				if _, err := s.List(); err != nil {
					t.Errorf("List failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	results, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 8*50 {
		t.Errorf("List returned %d results, want %d", len(results), 8*50)
	}
}
