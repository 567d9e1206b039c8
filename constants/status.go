package constants

// DocumentStatus is the canonical lifecycle status for rows in documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    DocumentStatus = "PENDING"    // uploaded, waiting for a worker
	StatusProcessing DocumentStatus = "PROCESSING" // a job is running
	StatusCompleted  DocumentStatus = "COMPLETED"  // pages and blocks written
	StatusFailed     DocumentStatus = "FAILED"     // terminal failure, error_message set
	StatusReview     DocumentStatus = "REVIEW"     // set by curation tooling, never by the pipeline
)

// BlockType classifies a single reading-order unit on a page.
type BlockType string

const (
	BlockText   BlockType = "TEXT"
	BlockTable  BlockType = "TABLE"
	BlockImage  BlockType = "IMAGE"
	BlockHeader BlockType = "HEADER"
	BlockFooter BlockType = "FOOTER"
	BlockList   BlockType = "LIST"
)

// MapBlockType converts a free-form engine type tag to the closed BlockType
// set. Unrecognized tags default to TEXT.
func MapBlockType(tag string) BlockType {
	switch tag {
	case "text", "TEXT":
		return BlockText
	case "table", "TABLE":
		return BlockTable
	case "image", "IMAGE":
		return BlockImage
	case "header", "HEADER":
		return BlockHeader
	case "footer", "FOOTER":
		return BlockFooter
	case "list", "LIST":
		return BlockList
	}
	return BlockText
}
