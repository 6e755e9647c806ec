// Package artifact builds the on-disk backup artifact of a run: the compressed dump,
// its parts and the manifest describing them. It also holds the read side used on restore.
package artifact

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DefaultChunkSize keeps every part below the remote store's 10 MB upload limit
const DefaultChunkSize int64 = 9 * 1024 * 1024

// MaxParts is the largest sequence number a three digit suffix can carry
const MaxParts = 999

// ManifestFilename is the name of the manifest, uploaded last
const ManifestFilename = "manifest.json"

// ChecksumAlgorithm names the hash recorded in the manifest
const ChecksumAlgorithm = "xxh64"

// RemoteRoot is the top level folder of every backup set
const RemoteRoot = "databaseBackups"

const isoLayout = "2006-01-02T15:04:05.000Z"

// Part describes one uploaded segment of the artifact
type Part struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`

	// Path is the location of the part in the local workspace
	Path string `json:"-"`
}

// Artifact is the logical backup of one run. Serialized, it is the manifest.
type Artifact struct {
	OriginalFilename  string    `json:"originalFilename"`
	TotalParts        int       `json:"totalParts"`
	TotalSize         int64     `json:"totalSize"`
	CreatedAt         Timestamp `json:"createdAt"`
	ChecksumAlgorithm string    `json:"checksumAlgorithm,omitempty"`
	Parts             []Part    `json:"parts"`
}

// Timestamp is a time serialized as UTC ISO-8601 with millisecond precision
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to milliseconds in UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// String formats the timestamp, e.g. 2024-03-05T10:15:30.123Z
func (t Timestamp) String() string {
	return t.UTC().Format(isoLayout)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the millisecond layout as well as any RFC 3339 time
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	value := strings.Trim(string(data), `"`)
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return fmt.Errorf("invalid createdAt %q: %w", value, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// FolderStamp is the run timestamp with ':' and '.' replaced so it can be used in names
func FolderStamp(createdAt Timestamp) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(createdAt.String())
}

// ParseFolderStamp reverses FolderStamp
func ParseFolderStamp(stamp string) (time.Time, error) {
	// 2024-03-05T10-15-30-123Z
	datePart, timePart, found := strings.Cut(stamp, "T")
	if !found {
		return time.Time{}, fmt.Errorf("incorrect backup stamp: %s", stamp)
	}
	pieces := strings.Split(strings.TrimSuffix(timePart, "Z"), "-")
	if len(pieces) != 4 {
		return time.Time{}, fmt.Errorf("incorrect backup stamp: %s", stamp)
	}
	value := fmt.Sprintf("%sT%s:%s:%s.%sZ", datePart, pieces[0], pieces[1], pieces[2], pieces[3])
	return time.Parse(isoLayout, value)
}

// BackupName is the name of the run's folder and workspace, e.g. backup-2024-03-05T10-15-30-123Z
func BackupName(createdAt Timestamp) string {
	return "backup-" + FolderStamp(createdAt)
}

// RemoteFolder is where a run's parts and manifest are stored:
// databaseBackups/{year}/Month-{month}/backup-{stamp}
func RemoteFolder(createdAt Timestamp) string {
	t := createdAt.UTC()
	return path.Join(
		RemoteRoot,
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("Month-%d", int(t.Month())),
		BackupName(createdAt),
	)
}

// PartFilename is the name of the seq'th part (1-based) of originalFilename
func PartFilename(originalFilename string, seq int) string {
	return fmt.Sprintf("%s.%03d", originalFilename, seq)
}

// PartCount is the number of parts a file of size bytes is split into
func PartCount(size int64, chunkSize int64) int {
	if size <= chunkSize {
		return 1
	}
	return int((size + chunkSize - 1) / chunkSize)
}
