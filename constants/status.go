package constants

// CaseStatus is the canonical status for rows in evidence_case.
type CaseStatus string

// Stable values (store these exact strings in DB).
const (
	CaseStatusUploaded      CaseStatus = "uploaded"       // file stored, pipeline not started
	CaseStatusProcessing    CaseStatus = "processing"     // rasterization + recognition stages running
	CaseStatusLLMProcessing CaseStatus = "llm_processing" // recognition done, field extraction running
	CaseStatusCompleted     CaseStatus = "completed"      // terminal; record may still be an error descriptor
	CaseStatusFailed        CaseStatus = "failed"         // terminal; error_message is set
)

// Terminal reports whether no further transitions are possible from s.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusFailed
}
