package domain

import "time"

type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusClassified RecordStatus = "classified"
	StatusFailed     RecordStatus = "failed"
)

const (
	// RecordPrefix namespaces content records in the store. Both halves of the
	// pipeline derive keys from it independently, so it must never change
	// while records are in flight.
	RecordPrefix = "emails/"
	// ResultPrefix namespaces classification results.
	ResultPrefix = "results/"
)

// MailItem is one inbound message as listed by the mailbox provider. The body
// is fetched separately per item.
type MailItem struct {
	ID         string
	Sender     string
	Subject    string
	Snippet    string
	ReceivedAt time.Time
}

// ContentRecord is the durable, store-resident representation of one mail
// item. It is the unit of work handed between the retriever and the
// classifier; every write is a full-record replace.
type ContentRecord struct {
	MessageID    string       `json:"message_id"`
	Sender       string       `json:"sender"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`
	ReceivedAt   time.Time    `json:"received_at"`
	Status       RecordStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	LastResponse string       `json:"last_response,omitempty"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ClassificationResult records the terminal label for one content record.
// At most one result exists per record key.
type ClassificationResult struct {
	RecordKey    string    `json:"record_key"`
	Label        Label     `json:"label"`
	RawResponse  string    `json:"raw_response"`
	ClassifiedAt time.Time `json:"classified_at"`
	Attempts     int       `json:"attempts"`
}

// RecordKey derives the store key for a provider message ID. The key is a
// direct echo of the ID under a fixed prefix, so re-exporting the same
// message overwrites instead of duplicating.
func RecordKey(messageID string) string {
	return RecordPrefix + messageID + ".json"
}

// ResultKey derives the result key adjacent to a record key.
func ResultKey(messageID string) string {
	return ResultPrefix + messageID + ".json"
}

// Terminal reports whether a record has reached a state the retriever must
// not downgrade on re-export.
func (r *ContentRecord) Terminal() bool {
	return r.Status == StatusClassified || r.Status == StatusFailed
}

// CycleReport summarizes one batch cycle for the operator. FailedKeys names
// the records or message IDs that need follow-up; nothing is dropped
// silently.
type CycleReport struct {
	Processed  int
	Skipped    int
	Failed     int
	FailedKeys []string
}

func (r *CycleReport) AddFailed(key string) {
	r.Failed++
	r.FailedKeys = append(r.FailedKeys, key)
}
