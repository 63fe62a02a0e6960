//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel document
// verification pipeline.
//
// These tests verify the COMPLETE upload pipeline:
//
//	Upload → OCR → Extraction → Classification → Fraud Rules → Cross-Reference → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server MUST run with the echo OCR engine so text files pass straight
// through as recognized text:
//
//	KESTREL_OCR_ENGINE=echo go run cmd/kestrel/main.go
//
// UNDERSTANDING THE DOMAIN:
//
// 1. SUBMISSION: One upload call with a declared identity and 1+ documents
//
// 2. CLASSIFICATION: Each document lands in one family with a base score:
//   - Aadhaar (12-digit number)      → base 10
//   - PAN (5 letters, 4 digits, 1)   → base 15
//   - Driving Licence                → base 20
//   - Unknown                        → base 80
//
// 3. FRAUD RULES: Identity mismatches add points on top of the base:
//   - Name similarity below 0.6      → +25 (match above it earns -5)
//   - DOB mismatch / missing         → +25 / +10
//   - Gender mismatch                → +10
//   - Blacklisted number             → +50 and an AML alert
//   - Duplicate number in DB         → +40 and an AML alert
//
// 4. RISK: Low < 30, Medium 30-69, High >= 70
//
// 5. DISPOSITION: High risk or any AML alert → Flagged;
//    Medium → Review; otherwise Auto-Pass
//
// NOTE: Tests share server state. Each scenario uses unique document
// numbers so duplicate detection only fires where intended. Re-running
// against a persistent database will trip duplicate detection; start the
// server with a fresh database between runs.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// Identity is the declared identity sent as form fields with the upload.
type Identity struct {
	Name   string
	DOB    string
	Gender string
}

// DocumentResult is one scored document in the upload response.
type DocumentResult struct {
	DocumentType string   `json:"documentType"`
	Number       string   `json:"number"`
	Name         string   `json:"name"`
	DateOfBirth  string   `json:"dateOfBirth"`
	Gender       string   `json:"gender"`
	FraudScore   int      `json:"fraudScore"`
	RiskLevel    string   `json:"riskLevel"`
	MatchRatio   float64  `json:"matchRatio"`
	Reasons      []string `json:"reasons"`
}

// SubmissionRecord is the aggregated record in the upload response.
type SubmissionRecord struct {
	ID                string           `json:"id"`
	UserName          string           `json:"userName"`
	Documents         []DocumentResult `json:"documents"`
	OverallFraudScore int              `json:"overallFraudScore"`
	OverallRiskLevel  string           `json:"overallRiskLevel"`
	FinalStatus       string           `json:"finalStatus"`
	IsValid           bool             `json:"isValid"`
	AmlAlerts         []AmlAlert       `json:"amlAlerts"`
	Reasons           []string         `json:"reasons"`
	Status            string           `json:"status"`
}

type AmlAlert struct {
	Type    string   `json:"type"`
	Number  string   `json:"number"`
	Matches []string `json:"matches"`
}

// UploadResponse is what POST /upload returns
type UploadResponse struct {
	Record   SubmissionRecord `json:"record"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func upload(t *testing.T, config TestConfig, identity Identity, docs map[string]string) UploadResponse {
	t.Helper()

	resp, body := uploadRaw(t, config, identity, docs)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, string(body))
	}

	var result UploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func uploadRaw(t *testing.T, config TestConfig, identity Identity, docs map[string]string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if identity.Name != "" {
		mw.WriteField("userName", identity.Name)
	}
	if identity.DOB != "" {
		mw.WriteField("userDob", identity.DOB)
	}
	if identity.Gender != "" {
		mw.WriteField("userGender", identity.Gender)
	}

	for slot, text := range docs {
		fw, err := mw.CreateFormFile(slot, slot+".txt")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write([]byte(text))
	}
	mw.Close()

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/upload", &buf)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, body
}

func postJSON(t *testing.T, config TestConfig, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp, respBody
}

// aadhaarText builds an Aadhaar-shaped document with a unique number so
// scenarios do not trip each other's duplicate detection.
func aadhaarText(name, number, dob, gender string) string {
	return fmt.Sprintf("Government of India\nName: %s\n%s\nDOB: %s\n%s", name, number, dob, gender)
}

// ============================================================================
// SCENARIO 1: Clean Submission (Auto-Pass)
// ============================================================================

func TestCleanAadhaar_AutoPass(t *testing.T) {
	/*
	   SCENARIO: An Aadhaar card whose name, DOB and gender all match the
	   declared identity.

	   EXPECTED BEHAVIOR:
	   - Classified as Aadhaar → base 10
	   - Name matches (ratio 1.0) → -5 trust bonus
	   - DOB and gender match → no change

	   FINAL: score 5, risk Low, disposition Auto-Pass
	*/
	config := getTestConfig()

	identity := Identity{Name: "Anjali Verma", DOB: "02/03/1992", Gender: "Female"}
	result := upload(t, config, identity, map[string]string{
		"aadhaar": aadhaarText("Anjali Verma", "4210 5532 9981", "02/03/1992", "Female"),
	})

	rec := result.Record

	// ASSERTIONS
	if rec.FinalStatus != "Auto-Pass" {
		t.Errorf("Expected Auto-Pass, got %s (reasons: %v)", rec.FinalStatus, rec.Reasons)
	}
	if rec.OverallFraudScore != 5 {
		t.Errorf("Expected score 5, got %d", rec.OverallFraudScore)
	}
	if rec.OverallRiskLevel != "Low" {
		t.Errorf("Expected Low risk, got %s", rec.OverallRiskLevel)
	}
	if len(rec.Documents) != 1 || rec.Documents[0].DocumentType != "Aadhaar" {
		t.Errorf("Expected one Aadhaar document, got %+v", rec.Documents)
	}
	if rec.Documents[0].Number != "4210 5532 9981" {
		t.Errorf("Expected canonical number, got %q", rec.Documents[0].Number)
	}
	if !rec.IsValid {
		t.Error("Expected isValid=true for Low risk")
	}

	t.Logf("✓ Clean submission passed: status=%s, score=%d", rec.FinalStatus, rec.OverallFraudScore)
}

// ============================================================================
// SCENARIO 2: Identity Mismatch (Review)
// ============================================================================

func TestNameMismatch_Review(t *testing.T) {
	/*
	   SCENARIO: The document carries a completely different name from the
	   declared one.

	   EXPECTED BEHAVIOR:
	   - Aadhaar base 10
	   - Name similarity far below 0.6 → +25
	   - DOB and gender match → no change

	   FINAL: score 35, risk Medium, disposition Review
	*/
	config := getTestConfig()

	identity := Identity{Name: "Suresh Nair", DOB: "11/11/1985", Gender: "Male"}
	result := upload(t, config, identity, map[string]string{
		"aadhaar": aadhaarText("Deepak Chopra", "7731 0244 8859", "11/11/1985", "Male"),
	})

	rec := result.Record
	if rec.FinalStatus != "Review" {
		t.Errorf("Expected Review, got %s (score %d)", rec.FinalStatus, rec.OverallFraudScore)
	}
	if rec.OverallFraudScore != 35 {
		t.Errorf("Expected score 35, got %d", rec.OverallFraudScore)
	}

	hasReason := false
	for _, r := range rec.Reasons {
		if r == "Name similarity low vs user input" {
			hasReason = true
		}
	}
	if !hasReason {
		t.Errorf("Expected name similarity reason, got %v", rec.Reasons)
	}

	t.Logf("✓ Name mismatch sent to review: score=%d, ratio=%.2f",
		rec.OverallFraudScore, rec.Documents[0].MatchRatio)
}

// ============================================================================
// SCENARIO 3: Unreadable Document (Flagged)
// ============================================================================

func TestUnreadableDocument_Flagged(t *testing.T) {
	/*
	   SCENARIO: The OCR text is effectively empty (whitespace only).

	   EXPECTED BEHAVIOR:
	   - Score pinned to 80 with reason "No OCR text"
	   - Risk High → disposition Flagged, isValid=false
	*/
	config := getTestConfig()

	identity := Identity{Name: "Kiran Rao"}
	result := upload(t, config, identity, map[string]string{"file": "   \n\t \n"})

	rec := result.Record
	if rec.FinalStatus != "Flagged" {
		t.Errorf("Expected Flagged, got %s", rec.FinalStatus)
	}
	if rec.OverallFraudScore != 80 {
		t.Errorf("Expected score 80, got %d", rec.OverallFraudScore)
	}
	if rec.IsValid {
		t.Error("Expected isValid=false for High risk")
	}

	t.Logf("✓ Unreadable document flagged: score=%d", rec.OverallFraudScore)
}

// ============================================================================
// SCENARIO 4: Blacklisted Number (AML Alert)
// ============================================================================

func TestBlacklistedNumber_FlaggedWithAlert(t *testing.T) {
	/*
	   SCENARIO: The document number is on the blacklist.

	   EXPECTED BEHAVIOR:
	   - PAN base 15, identity matches → 10
	   - Blacklist hit → +50, total 60 (Medium)
	   - Medium alone would be Review, but the AML alert forces Flagged
	*/
	config := getTestConfig()

	resp, body := postJSON(t, config, "/blacklist", map[string]string{
		"type":   "PAN",
		"number": "QWXYZ9377L",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to create blacklist entry: %d %s", resp.StatusCode, string(body))
	}

	identity := Identity{Name: "Mohit Bansal", DOB: "09/01/1979", Gender: "Male"}
	result := upload(t, config, identity, map[string]string{
		"pan": "Income Tax Department\nName: Mohit Bansal\nQWXYZ9377L\nDOB: 09/01/1979\nMale",
	})

	rec := result.Record
	if rec.FinalStatus != "Flagged" {
		t.Errorf("Expected Flagged for blacklisted number, got %s", rec.FinalStatus)
	}
	if rec.OverallFraudScore != 60 {
		t.Errorf("Expected score 60, got %d", rec.OverallFraudScore)
	}
	if len(rec.AmlAlerts) != 1 || rec.AmlAlerts[0].Type != "Blacklisted Number" {
		t.Errorf("Expected one blacklist alert, got %+v", rec.AmlAlerts)
	}

	// Alert set is persisted for audit
	alertResp, err := http.Get(config.BaseURL + "/alerts")
	if err != nil {
		t.Fatalf("GET /alerts failed: %v", err)
	}
	defer alertResp.Body.Close()
	if alertResp.StatusCode != http.StatusOK {
		t.Errorf("GET /alerts status %d", alertResp.StatusCode)
	}

	t.Logf("✓ Blacklisted number flagged with alert: score=%d", rec.OverallFraudScore)
}

// ============================================================================
// SCENARIO 5: Duplicate Number (Synthetic Identity Detection)
// ============================================================================

func TestDuplicateNumber_FlaggedWithAlert(t *testing.T) {
	/*
	   SCENARIO: Two different people upload the same Aadhaar number.

	   EXPECTED BEHAVIOR:
	   - First upload scores clean (5, Auto-Pass)
	   - Second upload finds the first in the database → +40 and a
	     Duplicate Number alert carrying the earlier submission id
	   - 45 is Medium, but the alert forces Flagged
	*/
	config := getTestConfig()

	number := "8856 1120 3347"

	first := upload(t, config,
		Identity{Name: "Pooja Mehta", DOB: "21/06/1994", Gender: "Female"},
		map[string]string{"aadhaar": aadhaarText("Pooja Mehta", number, "21/06/1994", "Female")},
	)
	if first.Record.FinalStatus != "Auto-Pass" {
		t.Fatalf("First upload should pass, got %s", first.Record.FinalStatus)
	}

	second := upload(t, config,
		Identity{Name: "Vikram Joshi", DOB: "30/12/1988", Gender: "Male"},
		map[string]string{"aadhaar": aadhaarText("Vikram Joshi", number, "30/12/1988", "Male")},
	)

	rec := second.Record
	if rec.FinalStatus != "Flagged" {
		t.Errorf("Expected Flagged for duplicate number, got %s", rec.FinalStatus)
	}
	if rec.OverallFraudScore != 45 {
		t.Errorf("Expected score 45, got %d", rec.OverallFraudScore)
	}
	if len(rec.AmlAlerts) != 1 || rec.AmlAlerts[0].Type != "Duplicate Number" {
		t.Fatalf("Expected one duplicate alert, got %+v", rec.AmlAlerts)
	}

	foundFirst := false
	for _, id := range rec.AmlAlerts[0].Matches {
		if id == first.Record.ID {
			foundFirst = true
		}
	}
	if !foundFirst {
		t.Errorf("Duplicate alert should reference submission %s, got %v",
			first.Record.ID, rec.AmlAlerts[0].Matches)
	}

	t.Logf("✓ Duplicate number flagged: score=%d, matches=%v",
		rec.OverallFraudScore, rec.AmlAlerts[0].Matches)
}

// ============================================================================
// SCENARIO 6: Admin Review Lifecycle
// ============================================================================

func TestReviewLifecycle(t *testing.T) {
	/*
	   SCENARIO: An admin approves a pending submission.

	   EXPECTED BEHAVIOR:
	   - The record moves atomically from pending to approved
	   - A second review of the same id finds nothing in pending → 404
	*/
	config := getTestConfig()

	result := upload(t, config,
		Identity{Name: "Neha Kulkarni", DOB: "14/02/1991", Gender: "Female"},
		map[string]string{"aadhaar": aadhaarText("Neha Kulkarni", "6643 0912 7785", "14/02/1991", "Female")},
	)
	id := result.Record.ID

	resp, body := postJSON(t, config, "/records/"+id+"/review", map[string]string{"status": "approved"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Review failed: %d %s", resp.StatusCode, string(body))
	}

	var moved SubmissionRecord
	if err := json.Unmarshal(body, &moved); err != nil {
		t.Fatalf("Failed to unmarshal moved record: %v", err)
	}
	if moved.Status != "Approved" {
		t.Errorf("Expected lifecycle Approved, got %s", moved.Status)
	}

	// Second review finds nothing in pending
	resp, _ = postJSON(t, config, "/records/"+id+"/review", map[string]string{"status": "rejected"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for second review, got %d", resp.StatusCode)
	}

	// Present in approved store
	getResp, err := http.Get(config.BaseURL + "/records/" + id + "?store=approved")
	if err != nil {
		t.Fatalf("GET approved record failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("Expected approved record to exist, got %d", getResp.StatusCode)
	}

	t.Logf("✓ Review lifecycle: pending → approved, re-review rejected")
}

// ============================================================================
// SCENARIO 7: Input Validation
// ============================================================================

func TestEmptyUpload_Error(t *testing.T) {
	/*
	   SCENARIO: Upload call with identity fields but no document files.

	   EXPECTED: HTTP 400 with "No documents uploaded"
	*/
	config := getTestConfig()

	resp, body := uploadRaw(t, config, Identity{Name: "Nobody"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty upload, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("No documents uploaded")) {
		t.Errorf("Expected 'No documents uploaded' error, got %s", string(body))
	}

	t.Logf("✓ Validation test passed: empty upload → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 8: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	result := upload(t, config,
		Identity{Name: "Arjun Malhotra", DOB: "19/09/1983", Gender: "Male"},
		map[string]string{"aadhaar": aadhaarText("Arjun Malhotra", "2219 8834 5501", "19/09/1983", "Male")},
	)

	rec := result.Record
	if rec.ID == "" {
		t.Error("Missing record.id")
	}
	if rec.FinalStatus != "Auto-Pass" && rec.FinalStatus != "Review" && rec.FinalStatus != "Flagged" {
		t.Errorf("Invalid finalStatus: %s", rec.FinalStatus)
	}
	if rec.OverallRiskLevel != "Low" && rec.OverallRiskLevel != "Medium" && rec.OverallRiskLevel != "High" {
		t.Errorf("Invalid overallRiskLevel: %s", rec.OverallRiskLevel)
	}
	if rec.Status != "Pending" {
		t.Errorf("Expected lifecycle Pending, got %s", rec.Status)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: id=%s, traceId=%s, totalMs=%d",
		rec.ID[:8], result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}
